package embed

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// OrtConfig configures the ONNX Runtime encoder.
type OrtConfig struct {
	LibraryPath   string
	ModelPath     string
	TokenizerPath string
	MaxSeqLen     int
	InputNames    []string
	OutputName    string
	ModelID       string
	Dimension     int
}

// OrtEncoder runs a transformer exported to ONNX and mean-pools its last
// hidden state over the attention mask.
type OrtEncoder struct {
	mu      sync.Mutex
	cfg     OrtConfig
	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession
}

var ortEnvMu sync.Mutex

// NewOrtEncoder loads the tokenizer and creates an inference session.
func NewOrtEncoder(cfg OrtConfig) (*OrtEncoder, error) {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, errors.New("onnx encoder: model_path and tokenizer_path are required")
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 512
	}
	if len(cfg.InputNames) == 0 {
		cfg.InputNames = []string{"input_ids", "attention_mask"}
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "last_hidden_state"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	if cfg.ModelID == "" {
		cfg.ModelID = filepath.Base(cfg.ModelPath)
	}

	if err := initOrtEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}
	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, cfg.InputNames, []string{cfg.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &OrtEncoder{cfg: cfg, tk: tk, session: session}, nil
}

func initOrtEnvironment(libraryPath string) error {
	ortEnvMu.Lock()
	defer ortEnvMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

// Encode embeds texts one at a time; sequence lengths differ per text.
func (o *OrtEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil, errors.New("onnx encoder is closed")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := o.encodeOne(text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (o *OrtEncoder) encodeOne(text string) ([]float32, error) {
	enc, err := o.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	ids := truncate(toInt64(enc.Ids), o.cfg.MaxSeqLen)
	mask := truncate(toInt64(enc.AttentionMask), o.cfg.MaxSeqLen)
	types := truncate(toInt64(enc.TypeIds), o.cfg.MaxSeqLen)
	seqLen := len(ids)
	if seqLen == 0 {
		return nil, errors.New("tokenizer produced no tokens")
	}
	if len(mask) != seqLen {
		mask = onesLike(seqLen)
	}
	if len(types) != seqLen {
		types = make([]int64, seqLen)
	}

	shape := ort.NewShape(1, int64(seqLen))
	byName := map[string][]int64{
		"input_ids":      ids,
		"attention_mask": mask,
		"token_type_ids": types,
	}
	inputs := make([]ort.Value, 0, len(o.cfg.InputNames))
	defer func() {
		for _, v := range inputs {
			_ = v.Destroy()
		}
	}()
	for _, name := range o.cfg.InputNames {
		data, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unsupported model input %q", name)
		}
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("input tensor %s: %w", name, err)
		}
		inputs = append(inputs, tensor)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(seqLen), int64(o.cfg.Dimension)))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer output.Destroy()

	if err := o.session.Run(inputs, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	return meanPool(output.GetData(), mask, o.cfg.Dimension)
}

func (o *OrtEncoder) Dimension() int  { return o.cfg.Dimension }
func (o *OrtEncoder) ModelID() string { return o.cfg.ModelID }

// Close releases the session. The shared runtime environment stays up.
func (o *OrtEncoder) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	err := o.session.Destroy()
	o.session = nil
	return err
}
