package main

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/term"
)

// promptPassphrase reads a passphrase from the controlling terminal without
// echoing it. When confirm is true (container creation), it is entered
// twice and must match. When stdin is not a terminal, one line is read
// from stdin instead and confirm is ignored.
func promptPassphrase(confirm bool) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read passphrase: %w", err)
		}
		return trimNewline(line), nil
	}

	fmt.Print("passphrase: ")
	first, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if !confirm {
		return string(first), nil
	}

	fmt.Print("confirm passphrase: ")
	second, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passphrases do not match")
	}
	return string(first), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
