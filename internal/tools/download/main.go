// Command download fetches a prebuilt Fift interpreter module for the wasm
// engine and checks it against a known blake2b-256 digest.
//
//	go run ./internal/tools/download <url> <output> [blake2b-hex]
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

func main() {
	if len(os.Args) != 3 && len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: download <url> <output> [blake2b-hex]")
		os.Exit(1)
	}

	url, output := os.Args[1], os.Args[2]
	var want string
	if len(os.Args) == 4 {
		want = strings.ToLower(os.Args[3])
	}

	if _, err := os.Stat(output); err == nil {
		if want == "" {
			return
		}
		if err := verifyFile(output, want); err == nil {
			return
		}
		fmt.Fprintf(os.Stderr, "%s does not match the expected digest, downloading again\n", output)
	}

	if err := download(url, output, want); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// download writes url to a temporary file next to output and renames it into
// place only when the digest matches.
func download(url, output, want string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(output), filepath.Base(output)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	hasher, err := blake2b.New256(nil)
	if err != nil {
		tmp.Close()
		return err
	}
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	got := hex.EncodeToString(hasher.Sum(nil))
	if want != "" && got != want {
		return fmt.Errorf("digest mismatch for %s: got %s, want %s", url, got, want)
	}
	fmt.Fprintf(os.Stderr, "%s blake2b-256 %s\n", output, got)
	return os.Rename(tmp.Name(), output)
}

func verifyFile(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return err
	}
	if _, err := io.Copy(hasher, f); err != nil {
		return err
	}
	if got := hex.EncodeToString(hasher.Sum(nil)); got != want {
		return fmt.Errorf("digest mismatch: got %s", got)
	}
	return nil
}
