// Package application contém os casos de uso do controle de admissão.
//
// Ele depende apenas do pacote domain e não conhece net/http nem Redis.
// Ex.: Gatekeeper.Admit(ctx, endpoint, client) devolve um Verdict
// (allow/deny + retry-after + motivo), combinando Resolver, BackoffTracker e o CounterStore.
package application
