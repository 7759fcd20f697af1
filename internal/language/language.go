// Package language maps file names to editor syntax languages.
package language

import "strings"

// Plaintext is returned for names without a known extension.
const Plaintext = "plaintext"

var byExtension = map[string]string{
	"js":         "javascript",
	"ts":         "typescript",
	"py":         "python",
	"java":       "java",
	"c":          "c",
	"cpp":        "cpp",
	"html":       "html",
	"css":        "css",
	"md":         "markdown",
	"json":       "json",
	"xml":        "xml",
	"txt":        "plaintext",
	"abap":       "abap",
	"apex":       "apex",
	"azcli":      "azcli",
	"bat":        "bat",
	"bicep":      "bicep",
	"cml":        "cameligo",
	"clj":        "clojure",
	"coffee":     "coffeescript",
	"cs":         "csharp",
	"csp":        "csp",
	"cypher":     "cypher",
	"dart":       "dart",
	"dockerfile": "dockerfile",
	"ecl":        "ecl",
	"ex":         "elixir",
	"flow":       "flow9",
	"fs":         "fsharp",
	"ftl":        "freemarker2",
	"go":         "go",
	"graphql":    "graphql",
	"hbs":        "handlebars",
	"hcl":        "hcl",
	"ini":        "ini",
	"jl":         "julia",
	"kt":         "kotlin",
	"less":       "less",
	"lexon":      "lexon",
	"lua":        "lua",
	"liquid":     "liquid",
	"m3":         "m3",
	"mdx":        "mdx",
	"mips":       "mips",
	"msdax":      "msdax",
	"mysql":      "mysql",
	"m":          "objective-c",
	"pas":        "pascal",
	"ligo":       "pascaligo",
	"pl":         "perl",
	"pgsql":      "pgsql",
	"php":        "php",
	"pla":        "pla",
	"pts":        "postiats",
	"pq":         "powerquery",
	"ps1":        "powershell",
	"proto":      "proto",
	"pug":        "pug",
	"r":          "r",
	"razor":      "razor",
	"redis":      "redis",
	"redshift":   "redshift",
	"rst":        "restructuredtext",
	"rb":         "ruby",
	"rs":         "rust",
	"sb":         "sb",
	"scala":      "scala",
	"scm":        "scheme",
	"scss":       "scss",
	"sh":         "shell",
	"sol":        "sol",
	"aes":        "aes",
	"sparql":     "sparql",
	"sql":        "sql",
	"st":         "st",
	"swift":      "swift",
	"sv":         "systemverilog",
	"v":          "verilog",
	"tcl":        "tcl",
	"twig":       "twig",
	"typespec":   "typespec",
	"vb":         "vb",
	"wgsl":       "wgsl",
	"yaml":       "yaml",
	"yml":        "yaml",
}

// For returns the syntax language for a file name based on the text after
// its last dot. Names without a dot, or with an unknown extension, map to
// Plaintext.
func For(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return Plaintext
	}
	if lang, ok := byExtension[strings.ToLower(name[i+1:])]; ok {
		return lang
	}
	return Plaintext
}

// IsMarkdown reports whether lang is one of the Markdown dialects.
func IsMarkdown(lang string) bool {
	return lang == "markdown" || lang == "mdx"
}
