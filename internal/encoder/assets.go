package encoder

import "path/filepath"

// AssetsConfig locates the model and tokenizer artifacts on disk.
type AssetsConfig struct {
	Dir            string
	ModelFile      string
	TokenizerFile  string
	RuntimeLibrary string
	OutputName     string
	Config
}

// ModelPath returns the resolved model graph path.
func (c AssetsConfig) ModelPath() string {
	return resolve(c.Dir, c.ModelFile)
}

// TokenizerPath returns the resolved tokenizer definition path.
func (c AssetsConfig) TokenizerPath() string {
	return resolve(c.Dir, c.TokenizerFile)
}

// Open loads the tokenizer and ONNX model and returns a ready encoder.
// Missing or malformed assets fail with domain.ErrModelLoad.
func Open(cfg AssetsConfig) (*Encoder, error) {
	tokenizer, err := OpenTokenizer(cfg.TokenizerPath())
	if err != nil {
		return nil, err
	}

	model, err := OpenONNXModel(ONNXConfig{
		ModelPath:      cfg.ModelPath(),
		RuntimeLibrary: cfg.RuntimeLibrary,
		OutputName:     cfg.OutputName,
	})
	if err != nil {
		return nil, err
	}

	enc, err := New(tokenizer, model, cfg.Config)
	if err != nil {
		_ = model.Close()
		return nil, err
	}
	return enc, nil
}

func resolve(dir, file string) string {
	if filepath.IsAbs(file) || dir == "" {
		return file
	}
	return filepath.Join(dir, file)
}
