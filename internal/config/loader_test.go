package config

import (
	"testing"
	"time"
)

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"

[Image]
ImgRoot = "./public"
MaxAge = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsIntegerSecondsForMaxAge(t *testing.T) {
	cfg := `
[Image]
ImgRoot = "./public"
MaxAge = 120
`
	loaded, err := Load(writeTempConfig(t, cfg))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Image.MaxAge.DurationValue() != 2*time.Minute {
		t.Fatalf("整数秒应解析为 2m，得到 %v", loaded.Image.MaxAge.DurationValue())
	}
}

func TestLoadParsesTimeoutsThroughUnmarshalText(t *testing.T) {
	cfg := `
[Image]
ImgRoot = "./public"
MaxAge = "0x10"
StallTimeout = 1.5
FlightTimeout = "2m"
`
	loaded, err := Load(writeTempConfig(t, cfg))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Image.MaxAge.DurationValue() != 16*time.Second {
		t.Fatalf("十六进制秒值应为 16s，得到 %v", loaded.Image.MaxAge.DurationValue())
	}
	if loaded.Image.StallTimeout.DurationValue() != 1500*time.Millisecond {
		t.Fatalf("小数秒应为 1.5s，得到 %v", loaded.Image.StallTimeout.DurationValue())
	}
	if loaded.Image.FlightTimeout.DurationValue() != 2*time.Minute {
		t.Fatalf("FlightTimeout 应为 2m，得到 %v", loaded.Image.FlightTimeout.DurationValue())
	}
}

func TestLoadFailsWhenFileMissing(t *testing.T) {
	if _, err := Load(testConfigPath(t, "does-not-exist.toml")); err == nil {
		t.Fatalf("文件不存在时应返回错误")
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("0x10")); err != nil {
		t.Fatalf("十六进制秒值应被接受: %v", err)
	}
	if d.DurationValue() != 16*time.Second {
		t.Fatalf("期望 16s，得到 %v", d.DurationValue())
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatalf("非法值应返回错误")
	}
}
