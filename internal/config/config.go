package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"visionguard/internal/classifier"
	"visionguard/internal/cooldown"
	"visionguard/internal/detection"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          int
	Password      string
	RunsDirectory string // Each run gets RunsDirectory/process_<id>
	DatabasePath  string
	LogDirectory  string
	LogMaxSizeMB  int
	MaxUploadMB   int64
	RunWorkers    int // Number of videos processed at the same time
	RunQueueSize  int

	// Detector
	ModelPath            string
	DetectorInputSize    int
	DetectorConfidence   float64
	DetectorNMSThreshold float64

	// Classifier
	Policy             string
	PersonClassID      int
	ObjectClasses      string // "43:knife,76:scissors"
	BaseThreshold      float64
	MinIoU             float64
	OverlapRatio       float64
	ZonePadding        float64
	ZoneThresholdRatio float64

	// Cooldown
	AlertCooldown time.Duration
	CooldownClock string // media or wall

	// Encoder
	EncoderPath   string
	EncoderCodec  string
	EncoderPreset string
	FallbackFPS   float64
	OutputName    string
	ShowCooldown  bool

	// Notifications
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPTo       []string
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
	// Upper bound for one alert notification
	NotifyTimeout time.Duration
}

// Load reads configuration from the environment, after loading a .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:          getEnvAsInt("PORT", 8080),
		Password:      getEnv("PASSWORD", "visionguard"),
		RunsDirectory: getEnv("RUNS_DIR", filepath.Join("static", "alerts")),
		DatabasePath:  getEnv("DB_PATH", filepath.Join("data", "visionguard.db")),
		LogDirectory:  getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogMaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 50),
		MaxUploadMB:   getEnvAsInt64("MAX_UPLOAD_MB", 512),
		RunWorkers:    getEnvAsInt("RUN_WORKERS", 2),
		RunQueueSize:  getEnvAsInt("RUN_QUEUE_SIZE", 16),

		ModelPath:            getEnv("MODEL_PATH", filepath.Join(".", "models", "yolov8n.onnx")),
		DetectorInputSize:    getEnvAsInt("DETECTOR_INPUT_SIZE", 640),
		DetectorConfidence:   getEnvAsFloat("DETECTOR_CONFIDENCE", 0.05),
		DetectorNMSThreshold: getEnvAsFloat("DETECTOR_NMS_THRESHOLD", 0.45),

		Policy:             getEnv("POLICY", string(classifier.KindIoU)),
		PersonClassID:      getEnvAsInt("PERSON_CLASS_ID", detection.PersonClassID),
		ObjectClasses:      getEnv("OBJECT_CLASSES", "43:knife,76:scissors"),
		BaseThreshold:      getEnvAsFloat("ALERT_THRESHOLD", 0.25),
		MinIoU:             getEnvAsFloat("MIN_IOU", 0.1),
		OverlapRatio:       getEnvAsFloat("IOU_THRESHOLD_RATIO", 0.8),
		ZonePadding:        getEnvAsFloat("ZONE_PADDING", 0.2),
		ZoneThresholdRatio: getEnvAsFloat("ZONE_THRESHOLD_RATIO", 0.6),

		AlertCooldown: getEnvAsDuration("ALERT_COOLDOWN", 5*time.Second),
		CooldownClock: getEnv("COOLDOWN_CLOCK", string(cooldown.MediaTime)),

		EncoderPath:   getEnv("FFMPEG_PATH", "ffmpeg"),
		EncoderCodec:  getEnv("ENCODER_CODEC", "libx264"),
		EncoderPreset: getEnv("ENCODER_PRESET", "veryfast"),
		FallbackFPS:   getEnvAsFloat("FALLBACK_FPS", 30),
		OutputName:    getEnv("OUTPUT_NAME", "processed_video.mp4"),
		ShowCooldown:  getEnvAsBool("SHOW_COOLDOWN", true),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPTo:       getEnvAsList("SMTP_TO"),
		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTTopic:    getEnv("MQTT_TOPIC", "visionguard/alerts"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "visionguard"),

		NotifyTimeout: getEnvAsDuration("NOTIFY_TIMEOUT", 30*time.Second),
	}
}

// ClassMap returns the configured objects of interest labelled with COCO names by default.
func (c *Config) ClassMap() (detection.ClassMap, error) {
	return detection.ParseClassMap(c.ObjectClasses, detection.COCO())
}

// Labels returns the full label set used for annotation.
func (c *Config) Labels() (detection.ClassMap, error) {
	objects, err := c.ClassMap()
	if err != nil {
		return nil, err
	}
	return detection.COCO().Merge(objects), nil
}

// ClassifierPolicy builds and validates the relevance policy.
func (c *Config) ClassifierPolicy() (classifier.Policy, error) {
	objects, err := c.ClassMap()
	if err != nil {
		return classifier.Policy{}, fmt.Errorf("invalid OBJECT_CLASSES: %w", err)
	}

	policy := classifier.Policy{
		Kind:               classifier.Kind(strings.ToLower(c.Policy)),
		PersonClassID:      c.PersonClassID,
		ObjectClasses:      objects,
		BaseThreshold:      c.BaseThreshold,
		MinIoU:             c.MinIoU,
		OverlapRatio:       c.OverlapRatio,
		ZonePadding:        c.ZonePadding,
		ZoneThresholdRatio: c.ZoneThresholdRatio,
	}
	if err := policy.Validate(); err != nil {
		return classifier.Policy{}, err
	}
	return policy, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("5s") or a bare number of seconds ("5").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var list []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
