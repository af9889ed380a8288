// Package flagx holds small helpers for parsing a subset of the command line.
//
// The server reads its flags in two passes: the config file path first, so
// the JSON layer can be applied, and then the regular overrides. Each pass
// only sees the arguments it owns.
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// ConfigEnv names the environment variable consulted when no -c / -config
// flag is given.
const ConfigEnv = "CONFIG"

// FilterArgs keeps only the allowed flags from args, together with their
// values. Both "-f value" and "-f=value" forms are recognised. A token that
// starts with '-' is never consumed as a value.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") {
			if name, _, ok := strings.Cut(arg, "="); ok {
				if _, keep := allowed[name]; keep {
					filtered = append(filtered, arg)
				}
				continue
			}
		}

		if _, keep := allowed[arg]; !keep {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// ConfigPath returns the JSON config file named by -c or -config in args.
// The last occurrence wins. When neither flag is present the value of
// lookup(ConfigEnv) is used, and "" means no file.
func ConfigPath(args []string, lookup func(string) (string, bool)) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to JSON config file")
	fs.StringVar(&path, "c", "", "path to JSON config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config", "--config"}))

	if path == "" && lookup != nil {
		if v, ok := lookup(ConfigEnv); ok {
			path = strings.TrimSpace(v)
		}
	}
	return path
}

// JsonConfigFlags is ConfigPath over the process arguments and environment.
func JsonConfigFlags() string {
	return ConfigPath(os.Args[1:], os.LookupEnv)
}
