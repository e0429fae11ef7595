package types

import (
	"math"
	"time"
)

// Config holds crawler configuration
type Config struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
	FetchDeadline  time.Duration `yaml:"fetch_deadline" json:"fetch_deadline"`

	OutputDir         string `yaml:"output_dir" json:"output_dir"`
	MaxFilenameLength int    `yaml:"max_filename_length" json:"max_filename_length"`

	Workers           int     `yaml:"workers" json:"workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	RespectRobots     bool    `yaml:"respect_robots" json:"respect_robots"`
	UserAgent         string  `yaml:"user_agent" json:"user_agent"`

	// Transport options
	TLS        bool   `yaml:"tls" json:"tls"`
	SOCKSProxy string `yaml:"socks_proxy" json:"socks_proxy"`

	IndexDB     string `yaml:"index_db" json:"index_db"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	ReportJSON  string `yaml:"report_json" json:"report_json"`
	ReportCSV   string `yaml:"report_csv" json:"report_csv"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
}

// FileStats is a size extremum record. Content is only kept for the
// smallest text file.
type FileStats struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Content []byte `json:"content,omitempty"`
}

// Unset is the size of a minimum tracker that has not seen a file yet.
const Unset int64 = math.MaxInt64

// IsSet reports whether the tracker holds a real file.
func (fs FileStats) IsSet() bool {
	return fs.Size != Unset && (fs.Path != "" || fs.Size > 0)
}

// ExternalServer is the last probe result for a referenced host.
type ExternalServer struct {
	Host string `json:"host"`
	Port string `json:"port"`
	Up   bool   `json:"up"`
}

// Report is the read-only snapshot of a finished crawl
type Report struct {
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Directories     []string `json:"directories"`
	TextFiles       []string `json:"text_files"`
	BinaryFiles     []string `json:"binary_files"`
	VisitedCount    int      `json:"visited_count"`
	ErrorReferences []string `json:"error_references"`
	IssueReferences []string `json:"issue_references"`

	SmallestText   FileStats `json:"smallest_text"`
	LargestText    FileStats `json:"largest_text"`
	SmallestBinary FileStats `json:"smallest_binary"`
	LargestBinary  FileStats `json:"largest_binary"`

	ExternalServers []ExternalServer `json:"external_servers"`
}

// FetchMode selects how a leaf body is interpreted
type FetchMode string

const (
	ModeText   FetchMode = "text"
	ModeBinary FetchMode = "binary"
)

// FetchRecord describes one request outcome for the crawl index
type FetchRecord struct {
	Selector    string    `json:"selector"`
	Mode        FetchMode `json:"mode"`
	Kind        string    `json:"kind"`
	Size        int64     `json:"size"`
	Complete    bool      `json:"complete"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	LinkCount   int       `json:"link_count"`
	Error       string    `json:"error,omitempty"`
	CrawledAt   time.Time `json:"crawled_at"`
}
