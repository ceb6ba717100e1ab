package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword: tests replace it with
// a stub so they never touch the real terminal.
var readPassword = term.ReadPassword

// GetSimpleText prints prompt and reads a single trimmed line from reader.
func GetSimpleText(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Println(prompt)
	text, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// GetPassword prints a password prompt and reads a password from the
// terminal without echo, printing a trailing newline to keep the prompt
// tidy. The caller is responsible for wiping the returned bytes.
func GetPassword(prompt string) ([]byte, error) {
	fmt.Println(prompt)
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// GetMultiline reads lines until an empty line, joining them with '\n'.
func GetMultiline(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Println(prompt)
	fmt.Println("(press Enter on an empty line to finish)")

	var lines []string
	for {
		line, _ := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
