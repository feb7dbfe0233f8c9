package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultConfigFileName = "config.toml"
	DefaultDBName         = "todo.db"
	DefaultLogName        = "todome.log"
	appDirName            = "todome"
	backupDirName         = "TodoMe"
	configEnv             = "TODOME_CONFIG"
)

type Keymap struct {
	Quit     string `toml:"quit"`
	Add      string `toml:"add"`
	Edit     string `toml:"edit"`
	Up       string `toml:"up"`
	Down     string `toml:"down"`
	NextTab  string `toml:"next_tab"`
	PrevTab  string `toml:"prev_tab"`
	Complete string `toml:"complete"`
	Restore  string `toml:"restore"`
	Delete   string `toml:"delete"`
	Collapse string `toml:"collapse"`
	Theme    string `toml:"theme"`
	Confirm  string `toml:"confirm"`
	Cancel   string `toml:"cancel"`
}

type Backup struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type Log struct {
	File  string `toml:"file"`
	Level string `toml:"level"`
}

// Config is the on-disk settings file. DefaultPriority preselects the priority
// of new tasks and takes urgent, normal or plan.
type Config struct {
	DBPath          string `toml:"db_path"`
	DefaultTab      string `toml:"default_tab"`
	DefaultPriority string `toml:"default_priority"`
	Theme           string `toml:"theme"`
	Backup          Backup `toml:"backup"`
	Log             Log    `toml:"log"`
	Keys            Keymap `toml:"keys"`
}

// ResolveConfigPath returns $TODOME_CONFIG when set, otherwise
// <user config dir>/todome/config.toml.
func ResolveConfigPath() string {
	if p := strings.TrimSpace(os.Getenv(configEnv)); p != "" {
		return expandHome(p)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultConfigFileName
	}
	return filepath.Join(dir, appDirName, DefaultConfigFileName)
}

// LoadOrCreate reads the config at path, writing the defaults there first when
// the file does not exist. Relative paths inside the file resolve against the
// config file's directory.
func LoadOrCreate(path string) (Config, error) {
	base := filepath.Dir(path)
	cfg := defaultConfig(base)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := write(path, cfg); err != nil {
			return cfg, fmt.Errorf("writing default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	cfg.fill(base)
	return cfg, nil
}

func (c *Config) fill(base string) {
	def := defaultConfig(base)
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.DefaultTab == "" {
		c.DefaultTab = def.DefaultTab
	}
	if c.DefaultPriority == "" {
		c.DefaultPriority = def.DefaultPriority
	}
	if c.Theme == "" {
		c.Theme = def.Theme
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = def.Backup.Dir
	}
	if c.Log.File == "" {
		c.Log.File = def.Log.File
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	c.DBPath = resolve(base, c.DBPath)
	c.Backup.Dir = resolve(base, c.Backup.Dir)
	c.Log.File = resolve(base, c.Log.File)
	c.Keys.fill(def.Keys)
}

func (k *Keymap) fill(def Keymap) {
	set := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	set(&k.Quit, def.Quit)
	set(&k.Add, def.Add)
	set(&k.Edit, def.Edit)
	set(&k.Up, def.Up)
	set(&k.Down, def.Down)
	set(&k.NextTab, def.NextTab)
	set(&k.PrevTab, def.PrevTab)
	set(&k.Complete, def.Complete)
	set(&k.Restore, def.Restore)
	set(&k.Delete, def.Delete)
	set(&k.Collapse, def.Collapse)
	set(&k.Theme, def.Theme)
	set(&k.Confirm, def.Confirm)
	set(&k.Cancel, def.Cancel)
}

func write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultConfig(base string) Config {
	return Config{
		DBPath:          filepath.Join(base, DefaultDBName),
		DefaultTab:      "todo",
		DefaultPriority: "normal",
		Theme:           "dark",
		Backup: Backup{
			Enabled: true,
			Dir:     resolve(base, defaultBackupDir()),
		},
		Log: Log{
			File:  filepath.Join(base, DefaultLogName),
			Level: "info",
		},
		Keys: DefaultKeymap(),
	}
}

func DefaultKeymap() Keymap {
	return Keymap{
		Quit:     "q",
		Add:      "a",
		Edit:     "e",
		Up:       "k",
		Down:     "j",
		NextTab:  "tab",
		PrevTab:  "shift+tab",
		Complete: "x",
		Restore:  "u",
		Delete:   "d",
		Collapse: "z",
		Theme:    "t",
		Confirm:  "enter",
		Cancel:   "esc",
	}
}

func defaultBackupDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("Downloads", backupDirName)
	}
	return filepath.Join(home, "Downloads", backupDirName)
}

func resolve(base, p string) string {
	p = expandHome(p)
	if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "file:") {
		return p
	}
	return filepath.Join(base, p)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
