package config

import "github.com/spf13/viper"

type Config struct {
	ServerPort    string `mapstructure:"SERVER_PORT"`
	PostgresURL   string `mapstructure:"POSTGRES_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	JWTSecret     string `mapstructure:"JWT_SECRET"`

	// ControlPassword guards the overlay's command surface.
	ControlPassword string `mapstructure:"CONTROL_PASSWORD"`

	OverlayID    string  `mapstructure:"OVERLAY_ID"`
	TripTargetKm float64 `mapstructure:"TRIP_TARGET_KM"`
	Units        string  `mapstructure:"UNITS"`

	// AutoStart seeds the start location from the first valid fix.
	AutoStart   bool `mapstructure:"AUTO_START"`
	VehicleMode bool `mapstructure:"VEHICLE_MODE"`

	// Optional MQTT location source; disabled when the broker URL is empty.
	MQTTBrokerURL string `mapstructure:"MQTT_BROKER_URL"`
	MQTTTopic     string `mapstructure:"MQTT_TOPIC"`
}

func Load() Config {
	viper.AutomaticEnv()
	viper.SetDefault("SERVER_PORT", ":8080")
	viper.SetDefault("POSTGRES_URL", "")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("JWT_SECRET", "dev-secret-change-me")
	viper.SetDefault("CONTROL_PASSWORD", "dev-password-change-me")
	viper.SetDefault("OVERLAY_ID", "default")
	viper.SetDefault("TRIP_TARGET_KM", 100.0)
	viper.SetDefault("UNITS", "km")
	viper.SetDefault("AUTO_START", true)
	viper.SetDefault("VEHICLE_MODE", false)
	viper.SetDefault("MQTT_BROKER_URL", "")
	viper.SetDefault("MQTT_TOPIC", "tripoverlay/location")

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return cfg
}
