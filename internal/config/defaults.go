package config

const (
	defaultDataDir              = "~/.local/share/harp"
	defaultUploadsSubdir        = "uploads"
	defaultOutputsSubdir        = "outputs"
	defaultLogsSubdir           = "logs"
	defaultWeightsSubdir        = "weights"
	defaultWeightsName          = "best.pt"
	defaultHistoryName          = "history.db"
	defaultAPIBind              = "127.0.0.1:8000"
	defaultMaxUploadMB          = 2048
	defaultAudioCommand         = "harp-audio-detect"
	defaultHandCommand          = "harp-hand-detect"
	defaultFFmpegBinary         = "ffmpeg"
	defaultFFprobeBinary        = "ffprobe"
	defaultSubtitleStyle        = "Fontsize=36,BorderStyle=1,Outline=2,Shadow=1,MarginV=50"
	defaultMaxConcurrentJobs    = 2
	defaultSweepIntervalMinutes = 30
	defaultClientPollIntervalMS = 1500
	defaultClientBackoffMS      = 3000
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	allowedOriginsEnv           = "ALLOWED_ORIGINS"
	apiBindEnv                  = "HARP_API_BIND"
	defaultFallbackWeights      = "best.pt"
)

var defaultAllowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}

// Default returns a Config populated with repository defaults. Directory
// fields left empty here are derived from Paths.DataDir during normalization.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		API: API{
			AllowedOrigins: append([]string(nil), defaultAllowedOrigins...),
			MaxUploadMB:    defaultMaxUploadMB,
		},
		Detectors: Detectors{
			AudioCommand:    []string{defaultAudioCommand},
			HandCommand:     []string{defaultHandCommand},
			FallbackWeights: defaultFallbackWeights,
		},
		FFmpeg: FFmpeg{
			Binary:        defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			ProbeUploads:  true,
			SubtitleStyle: defaultSubtitleStyle,
		},
		Workflow: Workflow{
			MaxConcurrentJobs:    defaultMaxConcurrentJobs,
			SweepIntervalMinutes: defaultSweepIntervalMinutes,
		},
		History: History{
			Enabled: true,
		},
		Client: Client{
			PollIntervalMS:    defaultClientPollIntervalMS,
			BackoffIntervalMS: defaultClientBackoffMS,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
