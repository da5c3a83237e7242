package manager

import (
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"llamachat/internal/chattemplate"
	"llamachat/internal/engine"
	"llamachat/internal/generation"
	"llamachat/internal/history"
	"llamachat/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth    = 8
	defaultMaxWait          = 30 * time.Second
	defaultConversationTTL  = 30 * time.Minute
	defaultMaxConversations = 256
)

// ChatConfig tunes the conversations created by the manager. Zero values
// fall back to the conversation package defaults.
type ChatConfig struct {
	SystemPrompt     string
	HistoryLimit     int
	SummaryInterval  int
	ReplyMaxTokens   int
	SummaryMaxTokens int
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Registry     []types.Model
	DefaultModel string

	// Engine configuration (no envs; set by callers)
	Backend       engine.Backend
	ContextSize   int
	BatchSize     int
	Threads       int
	GPULayers     int
	KeepKQVOnHost bool
	Sampling      *engine.SamplingConfig

	// Template names the chat formatter; chattemplate.Default when empty.
	Template string
	Chat     ChatConfig

	MaxQueueDepth    int
	MaxWait          time.Duration
	ConversationTTL  time.Duration
	MaxConversations int
	// StreamInterval is the frame period of streamed responses.
	StreamInterval time.Duration

	// History persists conversation turns when set.
	History   *history.Store
	Publisher EventPublisher
	Logger    *zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig. It fails only on an
// unknown template name.
func NewWithConfig(cfg ManagerConfig) (*Manager, error) {
	tmplName := cfg.Template
	if tmplName == "" {
		tmplName = chattemplate.Default
	}
	formatter, err := chattemplate.Lookup(tmplName)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	m := &Manager{
		state:          StateEmpty,
		registry:       append([]types.Model(nil), cfg.Registry...),
		defaultModel:   cfg.DefaultModel,
		ctxSize:        cfg.ContextSize,
		formatter:      formatter,
		chat:           cfg.Chat,
		history:        cfg.History,
		maxQueueDepth:  cfg.MaxQueueDepth,
		maxWait:        cfg.MaxWait,
		streamInterval: cfg.StreamInterval,
		publisher:      cfg.Publisher,
		log:            zerolog.Nop(),
		startTime:      time.Now(),
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "manager").Logger()
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	// Apply defaults if unset
	if m.ctxSize <= 0 {
		m.ctxSize = engine.DefaultContextSize
	}
	if m.maxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	}
	if m.maxWait <= 0 {
		m.maxWait = defaultMaxWait
	}
	if m.streamInterval <= 0 {
		m.streamInterval = generation.DefaultPollInterval
	}
	ttl := cfg.ConversationTTL
	if ttl <= 0 {
		ttl = defaultConversationTTL
	}
	maxConvs := cfg.MaxConversations
	if maxConvs <= 0 {
		maxConvs = defaultMaxConversations
	}

	backend := cfg.Backend
	if backend == nil {
		backend = engine.NewLlamaBackend()
	}
	sampling := engine.DefaultSampling()
	if cfg.Sampling != nil {
		sampling = cfg.Sampling.Clone()
	}
	// The template's stop words apply unless the caller configured its own.
	m.customStops = len(sampling.StopWords) > 0
	if m.customStops {
		m.stopWords = append([]string(nil), sampling.StopWords...)
	} else {
		sampling.StopWords = formatter.StopWords()
	}
	m.handle = engine.NewWithConfig(engine.HandleConfig{
		Backend:       backend,
		Logger:        cfg.Logger,
		BatchSize:     cfg.BatchSize,
		Threads:       cfg.Threads,
		GPULayers:     cfg.GPULayers,
		KeepKQVOnHost: cfg.KeepKQVOnHost,
		Sampling:      &sampling,
	})
	m.session = generation.NewWithConfig(m.handle, generation.Config{Logger: cfg.Logger})

	m.queueCh = make(chan struct{}, m.maxQueueDepth)
	m.genCh = make(chan struct{}, 1)

	m.convs = ttlcache.New[string, *convEntry](
		ttlcache.WithTTL[string, *convEntry](ttl),
		ttlcache.WithCapacity[string, *convEntry](uint64(maxConvs)),
	)
	m.convs.OnEviction(m.onConversationEvicted)
	go m.convs.Start()
	return m, nil
}
