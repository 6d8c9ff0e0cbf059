package emb

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// Config describes the model files used by an Encoder.
type Config struct {
	OrtDLL        string
	ModelPath     string
	TokenizerPath string
	MaxSeqLen     int
	Pooling       string
}

// Encoder turns text into unit length sentence embeddings with an ONNX
// transformer model. A zero Encoder must be initialized with Init.
type Encoder struct {
	mu         sync.Mutex
	cfg        Config
	tk         *tokenizer.Tokenizer
	session    *ort.DynamicAdvancedSession
	inputNames []string
	dim        int
	ready      bool
}

const (
	inputIDs       = "input_ids"
	inputMask      = "attention_mask"
	inputTokenType = "token_type_ids"
)

// Init loads the tokenizer and creates the inference session.
func (e *Encoder) Init(cfg Config) error {
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return errors.New("model path is required")
	}
	if strings.TrimSpace(cfg.TokenizerPath) == "" {
		return errors.New("tokenizer path is required")
	}
	for _, p := range []string{cfg.ModelPath, cfg.TokenizerPath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 512
	}
	if cfg.Pooling == "" {
		cfg.Pooling = PoolingCLS
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return fmt.Errorf("load tokenizer: %w", err)
	}

	if err := acquireRuntime(cfg.OrtDLL); err != nil {
		return err
	}
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		releaseRuntime()
		return fmt.Errorf("inspect model: %w", err)
	}
	names, err := selectInputs(inputs)
	if err != nil {
		releaseRuntime()
		return err
	}
	if len(outputs) == 0 {
		releaseRuntime()
		return errors.New("model declares no outputs")
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, names, []string{outputs[0].Name}, nil)
	if err != nil {
		releaseRuntime()
		return fmt.Errorf("create session: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.tk = tk
	e.session = session
	e.inputNames = names
	e.ready = true
	return nil
}

func selectInputs(infos []ort.InputOutputInfo) ([]string, error) {
	declared := make(map[string]bool, len(infos))
	for _, info := range infos {
		declared[info.Name] = true
	}
	if !declared[inputIDs] || !declared[inputMask] {
		return nil, fmt.Errorf("model must accept %s and %s", inputIDs, inputMask)
	}
	names := []string{inputIDs, inputMask}
	if declared[inputTokenType] {
		names = append(names, inputTokenType)
	}
	return names, nil
}

// Encode returns the L2 normalized embedding of text.
func (e *Encoder) Encode(text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return nil, errors.New("encoder is not initialized")
	}
	enc, err := e.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	ids := truncate(enc.GetIds(), e.cfg.MaxSeqLen)
	mask := truncate(enc.GetAttentionMask(), e.cfg.MaxSeqLen)
	types := truncate(enc.GetTypeIds(), e.cfg.MaxSeqLen)
	if len(ids) == 0 {
		return nil, errors.New("tokenizer produced no tokens")
	}
	if len(mask) != len(ids) {
		mask = ones(len(ids))
	}
	if len(types) != len(ids) {
		types = make([]int, len(ids))
	}

	shape := ort.NewShape(1, int64(len(ids)))
	mask64 := toInt64(mask)
	feeds := map[string][]int64{
		inputIDs:       toInt64(ids),
		inputMask:      mask64,
		inputTokenType: toInt64(types),
	}
	inputs := make([]ort.Value, 0, len(e.inputNames))
	defer func() {
		for _, v := range inputs {
			_ = v.Destroy()
		}
	}()
	for _, name := range e.inputNames {
		t, err := ort.NewTensor(shape, feeds[name])
		if err != nil {
			return nil, fmt.Errorf("create %s tensor: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}
	defer outputs[0].Destroy()
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	vec, err := pool(out.GetData(), out.GetShape(), mask64, e.cfg.Pooling)
	if err != nil {
		return nil, err
	}
	if e.dim == 0 {
		e.dim = len(vec)
	}
	return l2Normalize(vec), nil
}

// Dimension reports the embedding size, or 0 before the first Encode call.
func (e *Encoder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}

// Close releases the session and this encoder's runtime reference.
func (e *Encoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return
	}
	if e.session != nil {
		_ = e.session.Destroy()
		e.session = nil
	}
	e.tk = nil
	e.ready = false
	releaseRuntime()
}

func toInt64(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

func ones(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
