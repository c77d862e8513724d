// Package domain define contratos e tipos de domínio do controle de admissão.
//
// Este pacote não depende de net/http, Redis ou qualquer implementação concreta.
// A intenção é permitir testes de unidade puros e desacoplar as regras
// (janela fixa, backoff exponencial, política de falha) dos detalhes de infraestrutura.
package domain
