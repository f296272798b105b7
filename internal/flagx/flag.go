// Package flagx holds small helpers for picking individual flags out of the
// command line before the full flag set is parsed.
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// FilterArgs returns only the allowed flags (and their values) from args.
//
// Both "-c conf.json" and "--config=conf.json" forms are recognised. A value
// is taken from the next argument only when it does not start with "-".
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// StringFlag returns the value of a string flag known under any of names
// (without dashes). The last occurrence wins; "" if absent.
func StringFlag(args []string, names ...string) string {
	var value string

	allowed := make([]string, 0, len(names)*2)
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	for _, n := range names {
		allowed = append(allowed, "-"+n, "--"+n)
		fs.StringVar(&value, n, "", "")
	}
	_ = fs.Parse(FilterArgs(args, allowed))

	return value
}

// JsonConfigFlags returns the config file path given via -c or -config.
func JsonConfigFlags() string {
	return StringFlag(os.Args[1:], "c", "config")
}

// EnvFileFlags returns the dotenv file path given via -env-file.
func EnvFileFlags() string {
	return StringFlag(os.Args[1:], "env-file")
}
