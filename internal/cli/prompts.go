package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/kinecosystem/kinmigrate/internal/backup"
	"github.com/kinecosystem/kinmigrate/internal/kincrypto"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// Prompt functions are variables so tests can replace them.
//
//nolint:gochecknoglobals // test seams
var (
	promptPasswordFn      = promptPassword
	promptNewPassphraseFn = promptNewPassphrase
	promptConfirmFn       = promptConfirmation
)

// out is a helper for CLI output that ignores write errors.
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func out(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

// outln is a helper for CLI output with newline.
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func outln(w io.Writer, args ...any) {
	fmt.Fprintln(w, args...)
}

func zeroBytes(b []byte) { kincrypto.Zero(b) }

// promptPassword prompts for a secret with hidden input. Piped input is
// read as one line.
// The caller is responsible for zeroing the returned bytes after use.
func promptPassword(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	if !term.IsTerminal(syscall.Stdin) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}

	password, err := term.ReadPassword(syscall.Stdin)
	outln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return password, nil
}

// promptNewPassphrase prompts for a backup passphrase with confirmation
// and checks its strength.
func promptNewPassphrase() (string, error) {
	first, err := promptPasswordFn("Backup passphrase: ")
	if err != nil {
		return "", err
	}
	defer zeroBytes(first)
	if err := backup.ValidatePassphrase(string(first)); err != nil {
		return "", err
	}

	confirm, err := promptPasswordFn("Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	defer zeroBytes(confirm)

	if string(first) != string(confirm) {
		return "", kinerr.WithSuggestion(kinerr.ErrInvalidInput, "passphrases do not match")
	}
	return string(first), nil
}

// promptConfirmation asks a yes/no question, defaulting to no.
func promptConfirmation(question string) bool {
	out(os.Stderr, "%s [y/N]: ", question)

	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
