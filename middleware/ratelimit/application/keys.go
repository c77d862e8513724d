package application

import (
	"strings"

	"admission-gateway/middleware/ratelimit/domain"
)

// KeySpace monta as chaves do store:
//
//	{prefix}:window:{client}[:{endpoint}]
//	{prefix}:backoff:{client}
//
// O endpoint normalizado sempre começa com "/", então um cliente IPv6 (com ":")
// não fica ambíguo.
type KeySpace struct {
	Prefix string
}

func (k KeySpace) prefix() string {
	p := strings.Trim(k.Prefix, ":")
	if p == "" {
		return domain.DefaultKeyPrefix
	}
	return p
}

func (k KeySpace) Window(client domain.ClientID, endpoint domain.Endpoint, scoped bool) string {
	if scoped {
		return k.prefix() + ":window:" + string(client) + ":" + string(endpoint)
	}
	return k.prefix() + ":window:" + string(client)
}

func (k KeySpace) Backoff(client domain.ClientID) string {
	return k.prefix() + ":backoff:" + string(client)
}
