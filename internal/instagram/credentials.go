package instagram

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// CredentialSupplier provides login secrets on demand. Suppliers are only
// consulted when no stored session can be reused.
type CredentialSupplier interface {
	Password(ctx context.Context) (string, error)
	TwoFactorCode(ctx context.Context) (string, error)
}

// StaticCredentials serves a fixed password and optional two-factor code,
// for API-driven logins.
type StaticCredentials struct {
	Pass string
	Code string
}

func (s StaticCredentials) Password(ctx context.Context) (string, error) {
	return s.Pass, nil
}

func (s StaticCredentials) TwoFactorCode(ctx context.Context) (string, error) {
	if s.Code == "" {
		return "", fmt.Errorf("no two-factor code available")
	}
	return s.Code, nil
}

// PromptCredentials reads secrets interactively, for operator-driven CLI
// logins.
type PromptCredentials struct {
	Account string
	In      io.Reader
	Out     io.Writer
}

func (p *PromptCredentials) Password(ctx context.Context) (string, error) {
	return p.prompt(fmt.Sprintf("Password for %s: ", p.Account))
}

func (p *PromptCredentials) TwoFactorCode(ctx context.Context) (string, error) {
	return p.prompt(fmt.Sprintf("Two-factor code for %s: ", p.Account))
}

func (p *PromptCredentials) prompt(label string) (string, error) {
	fmt.Fprint(p.Out, label)
	reader := bufio.NewReader(p.In)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
