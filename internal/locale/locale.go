package locale

import (
	"embed"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed locales/*.toml
var catalogs embed.FS

const fallback = "en_US"

type CliFlags struct {
	Config        string `toml:"config"`
	Profile       string `toml:"profile"`
	Profiles      string `toml:"profiles"`
	OutputFormat  string `toml:"output_format"`
	Format        string `toml:"format"`
	File          string `toml:"file"`
	NoCache       string `toml:"no_cache"`
	NoSingleSheet string `toml:"no_single_sheet"`
	NoSingleFile  string `toml:"no_single_file"`
	MetricsFile   string `toml:"metrics_file"`
	Timeout       string `toml:"timeout"`
}

type CliCommands struct {
	Execute string `toml:"execute"`
	Export  string `toml:"export"`
	Shell   string `toml:"shell"`
	Check   string `toml:"check"`
}

type CliArgs struct {
	Execute string `toml:"execute"`
	Export  string `toml:"export"`
}

type CliSection struct {
	Description string      `toml:"description"`
	Flags       CliFlags    `toml:"flags"`
	Commands    CliCommands `toml:"commands"`
	Args        CliArgs     `toml:"args"`
}

type ErrorsSection struct {
	InvalidProfile      string `toml:"invalid_profile"`
	NoProfiles          string `toml:"no_profiles"`
	NoQuery             string `toml:"no_query"`
	OutputFormatNotImpl string `toml:"output_format_not_implemented"`
	OutputFormatEmpty   string `toml:"output_format_empty"`
	ConnectionFailed    string `toml:"connection_failed"`
	QueryFailed         string `toml:"query_failed"`
	NoDataReturned      string `toml:"no_data_returned"`
	CheckFailed         string `toml:"check_failed"`
}

type LogsSection struct {
	NoAPIURL                   string `toml:"no_api_url"`
	ProfileDisabled            string `toml:"profile_disabled"`
	UnableIdentifyQueryType    string `toml:"unable_identify_query_type"`
	IdentifiedQueryType        string `toml:"identified_query_type"`
	RunningQueryOnProfile      string `toml:"running_query_on_profile"`
	ErrorRunningQueryOnProfile string `toml:"error_running_query_on_profile"`
	QuerySuccessfulOnProfile   string `toml:"query_successful_on_profile"`
	SkippingProfileError       string `toml:"skipping_profile_error"`
	QuerySummary               string `toml:"query_summary"`
	CheckFailedAttempt         string `toml:"check_failed_attempt"`
	CacheHit                   string `toml:"cache_hit"`
	CacheExpired               string `toml:"cache_expired"`
	MutatingStatement          string `toml:"mutating_statement"`
	MetricsWritten             string `toml:"metrics_written"`
}

type ShellSection struct {
	Welcome    string `toml:"welcome"`
	Help       string `toml:"help"`
	TimeoutSet string `toml:"timeout_set"`
	Goodbye    string `toml:"goodbye"`
}

type Locale struct {
	Name   string        `toml:"-"`
	CLI    CliSection    `toml:"cli"`
	Errors ErrorsSection `toml:"errors"`
	Logs   LogsSection   `toml:"logs"`
	Shell  ShellSection  `toml:"shell"`
}

// L is the catalog in use. It starts as the fallback catalog so packages can
// log before the configured locale is loaded.
var L = mustLoad(fallback)

func DetectSystemLocale() string {
	lang := os.Getenv("LANG")
	if lang == "" {
		return fallback
	}

	cleanLang := strings.Split(lang, ".")[0]

	return strings.ReplaceAll(cleanLang, "-", "_")
}

// Load returns the catalog for localeName, falling back to en_US when no
// catalog exists for it. "auto" and "" detect the system locale.
func Load(localeName string) (*Locale, error) {
	if localeName == "" || strings.ToLower(localeName) == "auto" {
		localeName = DetectSystemLocale()
	}

	localePath := path.Join("locales", localeName+".toml")
	if _, err := catalogs.Open(localePath); err != nil {
		localeName = fallback
		localePath = path.Join("locales", fallback+".toml")
	}

	b, err := catalogs.ReadFile(localePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load locale file %s: %w", localePath, err)
	}

	l := Locale{Name: localeName}
	if _, err := toml.Decode(string(b), &l); err != nil {
		return nil, fmt.Errorf("failed to load locale file %s: %w", localePath, err)
	}

	return &l, nil
}

// Use loads localeName and makes it the catalog in use.
func Use(localeName string) (*Locale, error) {
	l, err := Load(localeName)
	if err != nil {
		return nil, err
	}
	L = l
	return l, nil
}

func mustLoad(name string) *Locale {
	l, err := Load(name)
	if err != nil {
		panic(err)
	}
	return l
}
