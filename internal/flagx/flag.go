// Package flagx lets several config layers read their own flags from
// os.Args without tripping over each other.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs keeps only the flags named in allowedFlags, together with their
// values. Both "-c conf.json" and "--config=conf.json" forms are recognised;
// a following token that starts with "-" is never taken as a value.
// The result is never nil.
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

		if _, ok := allowed[arg]; !ok {
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

// lookupString parses a single string flag, known under any of names, out of
// os.Args. The last occurrence wins.
func lookupString(set, usage string, names ...string) string {
	var value string

	dashed := make([]string, len(names))
	fs := flag.NewFlagSet(set, flag.ContinueOnError)
	for i, n := range names {
		dashed[i] = "-" + n
		fs.StringVar(&value, n, "", usage)
	}
	_ = fs.Parse(FilterArgs(os.Args[1:], dashed))

	return value
}

// JsonConfigFlags returns the config file path given with -c or -config, or
// "" when neither is present.
func JsonConfigFlags() string {
	return lookupString("json", "Path to config file", "config", "c")
}

// EnvFileFlag returns the dotenv file named by -env.
func EnvFileFlag() string {
	return lookupString("env", "Path to .env file", "env")
}
