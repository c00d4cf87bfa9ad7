package research

import "time"

// Default policy constants. Every one of these is overridable through run
// configuration; the defaults match the documented behavior.
const (
	DefaultMaxRevisions        = 2
	DefaultConfidenceThreshold = 0.6
	DefaultMaxPlanQueries      = 6
	DefaultMinPlanQueries      = 3
	DefaultToolRetryAttempts   = 3
	DefaultToolRetryBackoff    = time.Second
	DefaultMaxIterations       = 10
)

// EnabledTools is the per-profile tool switchboard.
type EnabledTools struct {
	WebSearch        bool `json:"web_search" yaml:"web_search"`
	Crawl            bool `json:"crawl" yaml:"crawl"`
	Browser          bool `json:"browser" yaml:"browser"`
	SandboxBrowser   bool `json:"sandbox_browser" yaml:"sandbox_browser"`
	SandboxWebSearch bool `json:"sandbox_web_search" yaml:"sandbox_web_search"`
	Python           bool `json:"python" yaml:"python"`
	TaskList         bool `json:"task_list" yaml:"task_list"`
	ComputerUse      bool `json:"computer_use" yaml:"computer_use"`
	MCP              bool `json:"mcp" yaml:"mcp"`
}

// Config is the per-run configuration consumed by the nodes.
type Config struct {
	Model          string `json:"model,omitempty" yaml:"model"`
	ReasoningModel string `json:"reasoning_model,omitempty" yaml:"reasoning_model"`

	// SearchMode overrides the router entirely when set to a route name
	// (direct, web, deep, agent).
	SearchMode string `json:"search_mode,omitempty" yaml:"search_mode"`

	MaxRevisions               int     `json:"max_revisions" yaml:"max_revisions"`
	RoutingConfidenceThreshold float64 `json:"routing_confidence_threshold" yaml:"routing_confidence_threshold"`

	AllowInterrupts bool `json:"allow_interrupts" yaml:"allow_interrupts"`
	HumanReview     bool `json:"human_review" yaml:"human_review"`

	ToolCallLimit        int           `json:"tool_call_limit" yaml:"tool_call_limit"` // 0 = unlimited
	ToolRetry            bool          `json:"tool_retry" yaml:"tool_retry"`
	ToolRetryMaxAttempts int           `json:"tool_retry_max_attempts" yaml:"tool_retry_max_attempts"`
	ToolRetryBackoff     time.Duration `json:"tool_retry_backoff" yaml:"tool_retry_backoff"`

	EnabledTools EnabledTools `json:"enabled_tools" yaml:"enabled_tools"`

	// MaxParallelSearches caps fan-out concurrency; 0 = plan size.
	MaxParallelSearches int `json:"max_parallel_searches" yaml:"max_parallel_searches"`

	// MaxIterations bounds the continuation loop inside tool-using nodes.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	TrimMessages          bool `json:"trim_messages" yaml:"trim_messages"`
	TrimMessagesKeepFirst int  `json:"trim_messages_keep_first" yaml:"trim_messages_keep_first"`
	TrimMessagesKeepLast  int  `json:"trim_messages_keep_last" yaml:"trim_messages_keep_last"`
}

// DefaultConfig returns the baseline run configuration.
func DefaultConfig() Config {
	return Config{
		MaxRevisions:               DefaultMaxRevisions,
		RoutingConfidenceThreshold: DefaultConfidenceThreshold,
		ToolRetry:                  true,
		ToolRetryMaxAttempts:       DefaultToolRetryAttempts,
		ToolRetryBackoff:           DefaultToolRetryBackoff,
		MaxIterations:              DefaultMaxIterations,
		EnabledTools: EnabledTools{
			WebSearch: true,
			Crawl:     true,
		},
		TrimMessagesKeepFirst: 2,
		TrimMessagesKeepLast:  8,
	}
}

// normalized fills unset fields with defaults so nodes never branch on zero
// values.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.RoutingConfidenceThreshold <= 0 {
		c.RoutingConfidenceThreshold = d.RoutingConfidenceThreshold
	}
	if c.ToolRetryMaxAttempts < 1 {
		c.ToolRetryMaxAttempts = d.ToolRetryMaxAttempts
	}
	if c.ToolRetryBackoff <= 0 {
		c.ToolRetryBackoff = d.ToolRetryBackoff
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	return c
}
