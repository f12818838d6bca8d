package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/qiuxuhao/pdf-merge-tool/internal/impose"
)

const (
	defaultConfigFile  = "nup.toml"
	defaultCapacity    = 4
	defaultOrientation = impose.Portrait
)

// fileConfig は nup.toml の内容です。すべての項目は省略可能です。
type fileConfig struct {
	Capacity    int    `toml:"capacity"`
	Orientation string `toml:"orientation"`
	OutputDir   string `toml:"output_dir"`
	Workers     int    `toml:"workers"`
	Password    string `toml:"password"`
}

// loadFileConfig は設定ファイルを読み込みます。
// path が空の場合はカレントディレクトリの nup.toml を探し、無ければゼロ値を返します。
func loadFileConfig(path string) (fileConfig, []string, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}

	var cfg fileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return fileConfig{}, nil, nil
		}
		return fileConfig{}, nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var unknown []string
	for _, key := range md.Undecoded() {
		unknown = append(unknown, key.String())
	}
	return cfg, unknown, nil
}

// settings はフラグ・設定ファイル・既定値を合成した実行パラメータです。
type settings struct {
	capacity    int
	orientation impose.Orientation
	outputDir   string
	workers     int
	password    string
}

// flagValues はコマンドラインで明示的に指定された値です。nil/空は未指定を表します。
type flagValues struct {
	capacity    *int
	orientation string
	workers     *int
	password    string
}

func resolveSettings(flags flagValues, file fileConfig) (settings, error) {
	s := settings{
		capacity:  defaultCapacity,
		outputDir: file.OutputDir,
		workers:   file.Workers,
		password:  file.Password,
	}
	if file.Capacity != 0 {
		s.capacity = file.Capacity
	}
	if flags.capacity != nil {
		s.capacity = *flags.capacity
	}
	if s.capacity <= 0 {
		return settings{}, fmt.Errorf("%w: capacity must be positive (got %d)", impose.ErrInvalidRequest, s.capacity)
	}

	rawOrientation := file.Orientation
	if flags.orientation != "" {
		rawOrientation = flags.orientation
	}
	o, err := impose.ParseOrientation(rawOrientation)
	if err != nil {
		return settings{}, err
	}
	s.orientation = o

	if flags.workers != nil {
		s.workers = *flags.workers
	}
	if flags.password != "" {
		s.password = flags.password
	}
	return s, nil
}

// parseSize は "595x842" 形式のページサイズを読み取ります。
func parseSize(raw string) (float64, float64, error) {
	var w, h float64
	if _, err := fmt.Sscanf(strings.ToLower(strings.TrimSpace(raw)), "%gx%g", &w, &h); err != nil {
		return 0, 0, fmt.Errorf("invalid size %q: want WIDTHxHEIGHT", raw)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q: dimensions must be positive", raw)
	}
	return w, h, nil
}
