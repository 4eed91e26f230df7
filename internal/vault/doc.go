// Package vault reads provider credentials from the HashiCorp Vault KV v2
// secrets engine. Each string value of a secret becomes one credential
// entry, so a secret {"username": "john", "password": "..."} can feed an
// OIDC password-grant provider directly.
package vault
