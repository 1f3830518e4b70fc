package utils

import (
	"fmt"
	"log"

	"github.com/BurntSushi/toml"
	"github.com/setanarut/backdrop"
)

// Config gathers every tunable of the backdrop pipeline.
type Config struct {
	Theme   backdrop.Theme         `toml:"theme"`
	Extract backdrop.Options       `toml:"extract"`
	Scene   backdrop.SceneOptions  `toml:"scene"`
	Render  backdrop.RenderOptions `toml:"render"`
}

func DefaultConfig() Config {
	return Config{
		Theme:   backdrop.ThemeDark,
		Extract: backdrop.DefaultOptions(),
		Scene:   backdrop.DefaultSceneOptions(),
		Render:  backdrop.DefaultRenderOptions(),
	}
}

// LoadConfig reads a TOML file over DefaultConfig. Keys absent from the
// file keep their defaults; unknown keys are logged and ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Printf("config warning: unknown key %q in %s", key.String(), path)
	}
	return cfg, nil
}

// DecodeConfig is LoadConfig for in-memory TOML.
func DecodeConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
