// Package config parses the CLI surface described in spec.md §6: a
// repeatable --server flag or a --server-file, a --listen bind address, a
// --timeout silence-timeout, and --version. There is no config file and no
// runtime reload — configuration is immutable once Load returns, per
// spec.md §3 "Configuration".
//
// Grounded on the shape of the teacher's internal/config/config.go
// (DefaultConfig + Load pair, fatal-on-bad-input) but reauthored around
// github.com/spf13/pflag instead of viper/YAML, since nothing in this
// system's scope reads or watches a config file.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	DefaultListen              = "0.0.0.0:11434"
	DefaultSilenceTimeoutSecs  = 30
	InitialConnectTimeout      = 1 * time.Second
	UsageExitCode              = 2
	ConfigurationErrorExitCode = 1
)

// Config is the immutable, validated configuration for one process run.
type Config struct {
	Servers        []*url.URL
	Listen         string
	SilenceTimeout time.Duration // 0 means no timeout, per spec.md §3
	ShowVersion    bool
}

// Parse parses args (typically os.Args[1:]) into a Config. It returns an
// error for a usage error (with the flag usage appended) and for a
// configuration error (no servers, unreadable server file, invalid URL,
// negative timeout); the two kinds are not distinguished by type, and main
// exits UsageExitCode for either.
func Parse(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("ollamux", pflag.ContinueOnError)
	fs.SortFlags = false

	var serverFlags []string
	var serverFile string
	var listen string
	var timeoutSecs int
	var showVersion bool

	fs.StringArrayVarP(&serverFlags, "server", "s", nil, "backend server URL (repeatable)")
	fs.StringVarP(&serverFile, "server-file", "f", "", "path to a newline-separated list of backend server URLs")
	fs.StringVarP(&listen, "listen", "l", DefaultListen, "inbound bind address")
	fs.IntVarP(&timeoutSecs, "timeout", "t", DefaultSilenceTimeoutSecs, "silence timeout in seconds; 0 disables it")
	fs.BoolVarP(&showVersion, "version", "v", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w\n%s", err, fs.FlagUsages())
	}

	if showVersion {
		return &Config{ShowVersion: true}, nil
	}

	if timeoutSecs < 0 {
		return nil, fmt.Errorf("--timeout must not be negative")
	}

	urls := append([]string{}, serverFlags...)
	if serverFile != "" {
		fromFile, err := readServerFile(serverFile)
		if err != nil {
			return nil, fmt.Errorf("reading --server-file %s: %w", serverFile, err)
		}
		urls = append(urls, fromFile...)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one backend is required via --server or --server-file")
	}

	servers := make([]*url.URL, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid backend URL %q", raw)
		}
		servers = append(servers, u)
	}

	return &Config{
		Servers:        servers,
		Listen:         listen,
		SilenceTimeout: time.Duration(timeoutSecs) * time.Second,
	}, nil
}

// readServerFile reads a newline-separated list of URLs, skipping blank
// lines and #-prefixed comments.
func readServerFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}
