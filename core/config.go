package core

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env          string // dev (local; default), test, qa, prod
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		SecretKey    string
		RollbarToken string

		Server     ServerConfig
		Database   DatabaseConfig
		Redis      RedisConfig
		Drowsiness DrowsinessConfig
		Model      ModelConfig
		AMQP       AMQPConfig
		Archive    ArchiveConfig
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugAddress       string
		DisableReqLogs     bool
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Timezone      string
	}

	RedisConfig struct {
		Address    string
		Password   string
		DB         int
		SessionTTL time.Duration
	}

	// DrowsinessConfig holds the pipeline tunables.
	DrowsinessConfig struct {
		DataDir          string
		LandmarkCount    int
		ChunkSize        int
		ChunksPerFile    int
		ShardSize        int
		SeqLen           int
		Stride           int
		SegmentMinutes   int
		FeatureCount     int
		PPGSamplingRate  float64
		PeakThreshold    float64
		AnomalyAlpha     float64
		AuthCodeAttempts int

		PPGPollInterval      time.Duration
		PPGStableFor         time.Duration
		PPGTimeout           time.Duration
		LandmarkPollInterval time.Duration
		LandmarkStableFor    time.Duration
		LandmarkTimeout      time.Duration
	}

	ModelConfig struct {
		Address        string
		Timeout        time.Duration
		MaxMessageSize int
	}

	AMQPConfig struct {
		URL        string
		Exchange   string
		RoutingKey string
	}

	ArchiveConfig struct {
		Endpoint  string
		AccessKey string
		SecretKey string
		Bucket    string
		UseSSL    bool
	}
)

// Address returns the "host:port" of the database server.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SegmentLength returns the HRV segment span.
func (c DrowsinessConfig) SegmentLength() time.Duration {
	return time.Duration(c.SegmentMinutes) * time.Minute
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Drowsiness")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "drowsiness")
	v.SetDefault("database.user", "drowsiness")
	v.SetDefault("database.password", "drowsiness")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.timezone", "utc")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.sessionTTL", 6*time.Hour)

	v.SetDefault("drowsiness.dataDir", "drowsiness_data")
	v.SetDefault("drowsiness.landmarkCount", 478)
	v.SetDefault("drowsiness.chunkSize", 150)
	v.SetDefault("drowsiness.chunksPerFile", 60)
	v.SetDefault("drowsiness.shardSize", 150)
	v.SetDefault("drowsiness.seqLen", 24)
	v.SetDefault("drowsiness.stride", 24)
	v.SetDefault("drowsiness.segmentMinutes", 2)
	v.SetDefault("drowsiness.featureCount", 39)
	v.SetDefault("drowsiness.ppgSamplingRate", 25.0)
	v.SetDefault("drowsiness.peakThreshold", 0.1)
	v.SetDefault("drowsiness.anomalyAlpha", 0.05)
	v.SetDefault("drowsiness.authCodeAttempts", 20)
	v.SetDefault("drowsiness.ppgPollInterval", time.Second)
	v.SetDefault("drowsiness.ppgStableFor", 10*time.Second)
	v.SetDefault("drowsiness.ppgTimeout", 180*time.Second)
	v.SetDefault("drowsiness.landmarkPollInterval", 500*time.Millisecond)
	v.SetDefault("drowsiness.landmarkStableFor", 2*time.Second)
	v.SetDefault("drowsiness.landmarkTimeout", 120*time.Second)

	v.SetDefault("model.address", "")
	v.SetDefault("model.timeout", 30*time.Second)
	v.SetDefault("model.maxMessageSize", 50*1024*1024)

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "drowsiness")
	v.SetDefault("amqp.routingKey", "drowsiness.session.scored")

	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.accessKey", "")
	v.SetDefault("archive.secretKey", "")
	v.SetDefault("archive.bucket", "drowsiness-sessions")
	v.SetDefault("archive.useSSL", false)
}

// NewConfig loads the app configuration from defaults, `config/.env.<env>` and the environment.
// Environment variables are prefixed with "DROWSY_" and use "_" as separator, e.g. DROWSY_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToLower(os.Getenv("APP_ENV"))
	if env == "" {
		env = "dev"
	}
	if env == "test" {
		v.SetDefault("testMode", true)
	}

	// load .env if it exists (ignore if it does not)
	if root, err := findRoot(); err == nil {
		dotEnvPath := filepath.Join(root, "config", ".env."+env)
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}

	v.SetEnvPrefix("DROWSY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			DebugAddress:       v.GetString("server.debugAddress"),
			DisableReqLogs:     v.GetBool("server.disableReqLogs"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Timezone:      v.GetString("database.timezone"),
		},
		Redis: RedisConfig{
			Address:    v.GetString("redis.address"),
			Password:   v.GetString("redis.password"),
			DB:         v.GetInt("redis.db"),
			SessionTTL: v.GetDuration("redis.sessionTTL"),
		},
		Drowsiness: DrowsinessConfig{
			DataDir:              v.GetString("drowsiness.dataDir"),
			LandmarkCount:        v.GetInt("drowsiness.landmarkCount"),
			ChunkSize:            v.GetInt("drowsiness.chunkSize"),
			ChunksPerFile:        v.GetInt("drowsiness.chunksPerFile"),
			ShardSize:            v.GetInt("drowsiness.shardSize"),
			SeqLen:               v.GetInt("drowsiness.seqLen"),
			Stride:               v.GetInt("drowsiness.stride"),
			SegmentMinutes:       v.GetInt("drowsiness.segmentMinutes"),
			FeatureCount:         v.GetInt("drowsiness.featureCount"),
			PPGSamplingRate:      v.GetFloat64("drowsiness.ppgSamplingRate"),
			PeakThreshold:        v.GetFloat64("drowsiness.peakThreshold"),
			AnomalyAlpha:         v.GetFloat64("drowsiness.anomalyAlpha"),
			AuthCodeAttempts:     v.GetInt("drowsiness.authCodeAttempts"),
			PPGPollInterval:      v.GetDuration("drowsiness.ppgPollInterval"),
			PPGStableFor:         v.GetDuration("drowsiness.ppgStableFor"),
			PPGTimeout:           v.GetDuration("drowsiness.ppgTimeout"),
			LandmarkPollInterval: v.GetDuration("drowsiness.landmarkPollInterval"),
			LandmarkStableFor:    v.GetDuration("drowsiness.landmarkStableFor"),
			LandmarkTimeout:      v.GetDuration("drowsiness.landmarkTimeout"),
		},
		Model: ModelConfig{
			Address:        v.GetString("model.address"),
			Timeout:        v.GetDuration("model.timeout"),
			MaxMessageSize: v.GetInt("model.maxMessageSize"),
		},
		AMQP: AMQPConfig{
			URL:        v.GetString("amqp.url"),
			Exchange:   v.GetString("amqp.exchange"),
			RoutingKey: v.GetString("amqp.routingKey"),
		},
		Archive: ArchiveConfig{
			Endpoint:  v.GetString("archive.endpoint"),
			AccessKey: v.GetString("archive.accessKey"),
			SecretKey: v.GetString("archive.secretKey"),
			Bucket:    v.GetString("archive.bucket"),
			UseSSL:    v.GetBool("archive.useSSL"),
		},
	}
}

// NewTestConfig returns the default config in test mode, with short pipeline waits.
func NewTestConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	conf := &Config{
		Env:       "test",
		Build:     "test",
		TestMode:  true,
		AppName:   v.GetString("appName"),
		SecretKey: "test-secret",
		Server: ServerConfig{
			Host:               "localhost",
			DisableReqLogs:     true,
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
		Database: DatabaseConfig{
			Engine:     "postgres",
			Host:       os.Getenv("DROWSY_TEST_DATABASE"),
			Port:       5432,
			Name:       "drowsiness_test",
			User:       "drowsiness",
			Password:   "drowsiness",
			AdminUser:  "postgres",
			DisableTLS: true,
			Timezone:   "utc",
		},
		Redis: RedisConfig{SessionTTL: time.Hour},
		Drowsiness: DrowsinessConfig{
			LandmarkCount:        478,
			ChunkSize:            150,
			ChunksPerFile:        60,
			ShardSize:            150,
			SeqLen:               24,
			Stride:               24,
			SegmentMinutes:       2,
			FeatureCount:         39,
			PPGSamplingRate:      25,
			PeakThreshold:        0.1,
			AnomalyAlpha:         0.05,
			AuthCodeAttempts:     20,
			PPGPollInterval:      5 * time.Millisecond,
			PPGStableFor:         20 * time.Millisecond,
			PPGTimeout:           2 * time.Second,
			LandmarkPollInterval: 5 * time.Millisecond,
			LandmarkStableFor:    20 * time.Millisecond,
			LandmarkTimeout:      2 * time.Second,
		},
		Model: ModelConfig{Timeout: 5 * time.Second, MaxMessageSize: 50 * 1024 * 1024},
	}
	return conf
}

func (c *Config) String() string {
	return fmt.Sprintf("env=%s build=%s debug=%t", c.Env, c.Build, c.Debug)
}
