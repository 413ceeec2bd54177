package walker

import (
	"path/filepath"
	"strings"
)

// LanguageUnknown tags files the indexer still chunks as plain text.
const LanguageUnknown = "unknown"

// extLanguages maps lowercased file extensions to the language tag stored
// on every chunk. The tags double as the vector store's language filter
// values, so they stay human readable.
var extLanguages = map[string]string{
	".go":  "Go",
	".py":  "Python",
	".pyi": "Python",

	".ts":  "TypeScript",
	".tsx": "TypeScript",
	".mts": "TypeScript",
	".js":  "JavaScript",
	".jsx": "JavaScript",
	".mjs": "JavaScript",
	".cjs": "JavaScript",

	".java":  "Java",
	".kt":    "Kotlin",
	".kts":   "Kotlin",
	".scala": "Scala",
	".rs":    "Rust",
	".c":     "C",
	".h":     "C",
	".cpp":   "C++",
	".cc":    "C++",
	".cxx":   "C++",
	".hpp":   "C++",
	".cs":    "C#",
	".rb":    "Ruby",
	".php":   "PHP",
	".swift": "Swift",
	".ex":    "Elixir",
	".exs":   "Elixir",
	".hs":    "Haskell",
	".lua":   "Lua",
	".dart":  "Dart",

	".sh":    "Shell",
	".bash":  "Shell",
	".zsh":   "Shell",
	".sql":   "SQL",
	".proto": "Protobuf",
	".tf":    "Terraform",

	".html":   "HTML",
	".htm":    "HTML",
	".css":    "CSS",
	".scss":   "CSS",
	".less":   "CSS",
	".vue":    "Vue",
	".svelte": "Svelte",

	".yaml":     "YAML",
	".yml":      "YAML",
	".json":     "JSON",
	".toml":     "TOML",
	".md":       "Markdown",
	".markdown": "Markdown",
}

// namedFiles tags files recognized by their exact name rather than an
// extension.
var namedFiles = map[string]string{
	"Dockerfile":          "Dockerfile",
	"Makefile":            "Makefile",
	"Jenkinsfile":         "Groovy",
	"Gemfile":             "Ruby",
	"Rakefile":            "Ruby",
	"docker-compose.yml":  "YAML",
	"docker-compose.yaml": "YAML",
}

// DetectLanguage returns the language tag for a filename, or
// LanguageUnknown when neither its name nor its extension is recognized.
func DetectLanguage(filename string) string {
	base := filepath.Base(filename)
	if lang, ok := namedFiles[base]; ok {
		return lang
	}
	if ext := strings.ToLower(filepath.Ext(base)); ext != "" {
		if lang, ok := extLanguages[ext]; ok {
			return lang
		}
	}
	return LanguageUnknown
}
