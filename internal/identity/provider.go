package identity

import (
	"context"
	"errors"
	"os"
	"os/user"
	"strings"
)

// ErrUnknownProvider is returned by SignInWithProvider for unregistered ids.
var ErrUnknownProvider = errors.New("identity: unknown provider")

// ProviderIdentity is what an external identity provider vouches for.
type ProviderIdentity struct {
	Subject     string // stable id within the provider
	Email       string
	DisplayName string
	PhotoURL    string
}

// Provider is a federated sign-in method.
type Provider interface {
	ID() string
	Authenticate(ctx context.Context) (ProviderIdentity, error)
}

// DevProvider signs in as the local OS user. It is meant for running the
// client against a local store without creating accounts.
type DevProvider struct{}

func (DevProvider) ID() string { return "dev" }

func (DevProvider) Authenticate(context.Context) (ProviderIdentity, error) {
	name := os.Getenv("USER")
	display := name
	if u, err := user.Current(); err == nil {
		name = u.Username
		if u.Name != "" {
			display = u.Name
		}
	}
	if name == "" {
		name = "viber"
	}
	if display == "" {
		display = name
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "localhost"
	}
	return ProviderIdentity{
		Subject:     name + "@" + host,
		Email:       strings.ToLower(name) + "@" + host,
		DisplayName: display,
	}, nil
}

// providerUID maps a provider subject onto a stable user id.
func providerUID(providerID, subject string) string {
	return providerID + ":" + subject
}

// usernameFromEmail is the local part of the address, kept to characters a
// username may hold.
func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	for _, r := range local {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() < 3 {
		b.WriteString("viber")
	}
	return b.String()
}
