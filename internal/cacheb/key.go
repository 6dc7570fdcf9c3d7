// Package cacheb handles access keys for the cacheb Earth Hub data service.
package cacheb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const prompt = "Please enter your cacheb key to access the Earth Hub service: "

// Machine is the data-service host the stored key authenticates against.
const Machine = "cacheb.dt.destination-earth.eu"

// Key prompts for a cacheb key on out and reads one line from in. It returns
// the trimmed key and true on success. Empty input, cancelled input (EOF
// before any text), and read failures are reported on out and yield
// ("", false); the session is never crashed by bad input.
func Key(in io.Reader, out io.Writer) (string, bool) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		fmt.Fprintf(out, "Error getting key: %v\n", err)
		return "", false
	}
	if err == io.EOF && line == "" {
		fmt.Fprintln(out, "\nKey input cancelled by user")
		return "", false
	}
	key := strings.TrimSpace(line)
	if key == "" {
		fmt.Fprintln(out, "Error getting key: key cannot be empty")
		return "", false
	}
	return key, true
}

// KeyFromStdin prompts on standard output and reads the key from standard
// input.
func KeyFromStdin() (string, bool) {
	return Key(os.Stdin, os.Stdout)
}

// SaveNetrc stores the key as a .netrc entry for Machine under dir, replacing
// any existing entry for the same machine. Subsequent data-service requests
// pick the credentials up from there.
func SaveNetrc(dir, key string) error {
	path := filepath.Join(dir, ".netrc")

	var kept []string
	if b, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
			if strings.Contains(line, "machine "+Machine) {
				continue
			}
			kept = append(kept, line)
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	kept = append(kept, fmt.Sprintf("machine %s login anonymous password %s", Machine, key))

	return os.WriteFile(path, []byte(strings.Join(kept, "\n")+"\n"), 0o600)
}
