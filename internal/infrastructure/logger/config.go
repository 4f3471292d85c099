package logger

import (
	"os"
	"runtime"
)

type Config struct {
	Level      Level             `json:"level"       yaml:"level"       env:"LOG_LEVEL"`
	Format     string            `json:"format"      yaml:"format"      env:"LOG_FORMAT"` // json, text, console
	Output     string            `json:"output"      yaml:"output"      env:"LOG_OUTPUT"` // stdout, stderr, file
	FilePath   string            `json:"file_path"   yaml:"file_path"   env:"LOG_FILE_PATH"`
	MaxSize    int               `json:"max_size"    yaml:"max_size"    env:"LOG_MAX_SIZE"` // MB
	MaxBackups int               `json:"max_backups" yaml:"max_backups" env:"LOG_MAX_BACKUPS"`
	MaxAge     int               `json:"max_age"     yaml:"max_age"     env:"LOG_MAX_AGE"` // days
	Compress   bool              `json:"compress"    yaml:"compress"    env:"LOG_COMPRESS"`
	Fields     map[string]string `json:"fields"      yaml:"fields"` // static fields for k8s/docker
}

func GetDefaultFields() Fields {
	hostname, _ := os.Hostname()

	fields := Fields{
		"hostname":   hostname,
		"pid":        os.Getpid(),
		"go_version": runtime.Version(),
	}

	// Kubernetes fields
	if namespace := os.Getenv("KUBERNETES_NAMESPACE"); namespace != "" {
		fields["k8s_namespace"] = namespace
	}
	if podName := os.Getenv("KUBERNETES_POD_NAME"); podName != "" {
		fields["k8s_pod"] = podName
	}

	// Application fields
	if appVersion := os.Getenv("APP_VERSION"); appVersion != "" {
		fields["app_version"] = appVersion
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		fields["environment"] = env
	}

	return fields
}

func NewDefaultConfig() *Config {
	config := &Config{
		Level:      LevelInfo,
		Format:     "console", // Default to console for development
		Output:     "stdout",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
		Fields: map[string]string{
			"service": "subscription-ws",
		},
	}

	for k, v := range GetDefaultFields() {
		if str, ok := v.(string); ok {
			config.Fields[k] = str
		}
	}

	return config
}
