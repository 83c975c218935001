package agent

import (
	"time"

	"github.com/go-go-golems/codesmith/pkg/inference/engine"
	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/go-go-golems/codesmith/pkg/turns"
	"github.com/pkg/errors"
)

const DefaultMaxTurns = 25

// PacingConfig controls how buffered model text is replayed to the observer.
type PacingConfig struct {
	// ChunkSize is the number of runes per replayed chunk.
	ChunkSize           int           `yaml:"chunk_size" mapstructure:"chunk-size"`
	ChunkDelay          time.Duration `yaml:"chunk_delay" mapstructure:"chunk-delay"`
	ThinkingToReasoning time.Duration `yaml:"thinking_to_reasoning" mapstructure:"thinking-to-reasoning"`
	BeforeCodeWriting   time.Duration `yaml:"before_code_writing" mapstructure:"before-code-writing"`
}

func DefaultPacingConfig() PacingConfig {
	return PacingConfig{
		ChunkSize:           24,
		ChunkDelay:          15 * time.Millisecond,
		ThinkingToReasoning: 400 * time.Millisecond,
		BeforeCodeWriting:   300 * time.Millisecond,
	}
}

// NoPacing replays chunks without any delay.
func NoPacing() PacingConfig {
	return PacingConfig{ChunkSize: DefaultPacingConfig().ChunkSize}
}

func (p PacingConfig) WithChunkSize(n int) PacingConfig {
	p.ChunkSize = n
	return p
}

func (p PacingConfig) WithChunkDelay(d time.Duration) PacingConfig {
	p.ChunkDelay = d
	return p
}

func (p PacingConfig) WithThinkingToReasoning(d time.Duration) PacingConfig {
	p.ThinkingToReasoning = d
	return p
}

func (p PacingConfig) WithBeforeCodeWriting(d time.Duration) PacingConfig {
	p.BeforeCodeWriting = d
	return p
}

// LoopConfig configures one agent's turn loop.
type LoopConfig struct {
	MaxTurns int
	// DryRun replaces tool execution with a synthesized description of the call.
	DryRun bool
	Model  string
	// MaxTokens per model call, 0 uses the engine default.
	MaxTokens  int
	ToolChoice tools.ToolChoice
	Inference  *engine.InferenceConfig
	WebSearch  *engine.WebSearchConfig
	Validation turns.ValidateOptions
	Pacing     PacingConfig
	// Verify appends a verification summary of changed files to the final answer.
	Verify bool
	// CheckReferences appends missing-reference warnings to tool results.
	CheckReferences bool
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxTurns:        DefaultMaxTurns,
		ToolChoice:      tools.ToolChoiceAuto,
		Pacing:          DefaultPacingConfig(),
		Verify:          true,
		CheckReferences: true,
	}
}

func (c LoopConfig) WithMaxTurns(n int) LoopConfig {
	c.MaxTurns = n
	return c
}

func (c LoopConfig) WithDryRun(dryRun bool) LoopConfig {
	c.DryRun = dryRun
	return c
}

func (c LoopConfig) WithModel(model string) LoopConfig {
	c.Model = model
	return c
}

func (c LoopConfig) WithMaxTokens(n int) LoopConfig {
	c.MaxTokens = n
	return c
}

func (c LoopConfig) WithToolChoice(choice tools.ToolChoice) LoopConfig {
	c.ToolChoice = choice
	return c
}

func (c LoopConfig) WithInference(cfg *engine.InferenceConfig) LoopConfig {
	c.Inference = cfg
	return c
}

func (c LoopConfig) WithWebSearch(ws *engine.WebSearchConfig) LoopConfig {
	c.WebSearch = ws
	return c
}

func (c LoopConfig) WithStrictServerToolResults(strict bool) LoopConfig {
	c.Validation.StrictServerToolResults = strict
	return c
}

func (c LoopConfig) WithPacing(p PacingConfig) LoopConfig {
	c.Pacing = p
	return c
}

func (c LoopConfig) WithVerify(verify bool) LoopConfig {
	c.Verify = verify
	return c
}

func (c LoopConfig) WithCheckReferences(check bool) LoopConfig {
	c.CheckReferences = check
	return c
}

func (c LoopConfig) Validate() error {
	if c.MaxTurns <= 0 {
		return errors.Errorf("max turns must be positive, got %d", c.MaxTurns)
	}
	if c.Pacing.ChunkSize <= 0 {
		return errors.Errorf("pacing chunk size must be positive, got %d", c.Pacing.ChunkSize)
	}
	if c.Pacing.ChunkDelay < 0 || c.Pacing.ThinkingToReasoning < 0 || c.Pacing.BeforeCodeWriting < 0 {
		return errors.New("pacing delays must not be negative")
	}
	if c.MaxTokens < 0 {
		return errors.Errorf("max tokens must not be negative, got %d", c.MaxTokens)
	}
	return nil
}
