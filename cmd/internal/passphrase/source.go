package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves a keystore passphrase from an environment variable or by
// prompting on the terminal. The first successful value is cached.
type Source struct {
	envVar  string
	label   string
	confirm bool

	// stdin and stderr are swapped in tests.
	stdin  int
	stderr io.Writer
	read   func(fd int) ([]byte, error)
	isTerm func(fd int) bool

	once  sync.Once
	value string
	err   error
}

// NewSource returns a source that checks envVar before prompting for the
// passphrase of the named key.
func NewSource(envVar, label string) *Source {
	return &Source{
		envVar: strings.TrimSpace(envVar),
		label:  label,
		stdin:  int(os.Stdin.Fd()),
		stderr: os.Stderr,
		read:   term.ReadPassword,
		isTerm: term.IsTerminal,
	}
}

// WithConfirmation makes interactive prompts ask twice, for new keys.
func (s *Source) WithConfirmation() *Source {
	s.confirm = true
	return s
}

func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	if !s.isTerm(s.stdin) {
		if s.envVar != "" {
			return "", fmt.Errorf("%s passphrase required; set %s or run interactively", s.label, s.envVar)
		}
		return "", fmt.Errorf("%s passphrase required and no terminal available", s.label)
	}

	first, err := s.prompt(fmt.Sprintf("Enter %s passphrase: ", s.label))
	if err != nil {
		return "", err
	}
	if s.confirm {
		second, err := s.prompt("Repeat passphrase: ")
		if err != nil {
			return "", err
		}
		if first != second {
			return "", errors.New("passphrases do not match")
		}
	}
	return first, nil
}

func (s *Source) prompt(text string) (string, error) {
	fmt.Fprint(s.stderr, text)
	raw, err := s.read(s.stdin)
	fmt.Fprintln(s.stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	value := string(raw)
	if strings.TrimSpace(value) == "" {
		return "", errors.New("passphrase cannot be empty")
	}
	return value, nil
}
