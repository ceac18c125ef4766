package config

const (
	defaultStagingDir           = "~/.local/share/loft/staging"
	defaultDataDir              = "~/.local/share/loft/data"
	defaultLogDir               = "~/.local/share/loft/logs"
	defaultAPIBind              = "127.0.0.1:7642"
	defaultBodyLimitMiB         = 4
	defaultMaxUploadMiB         = 100
	defaultSessionTTLMinutes    = 60
	defaultSweepIntervalMinutes = 10
	defaultStorageBackend       = "local"
	defaultStorageLocalDir      = "~/.local/share/loft/blobs"
	defaultStorageBaseURL       = "/media"
	defaultS3Region             = "us-east-1"
	defaultServerURL            = "http://127.0.0.1:7642"
	defaultFingerprintCeiling   = 20
	defaultDedupTimeoutSeconds  = 3
	defaultChunkSizeMiB         = 4
	defaultChunkRetryLimit      = 3
	defaultLargeTransferSlots   = 2
	defaultMinFreeSpaceMiB      = 512
	defaultTargetCeilingMiB     = 4
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Server: Server{
			BodyLimitMiB:         defaultBodyLimitMiB,
			MaxUploadMiB:         defaultMaxUploadMiB,
			SessionTTLMinutes:    defaultSessionTTLMinutes,
			SweepIntervalMinutes: defaultSweepIntervalMinutes,
		},
		Storage: Storage{
			Backend:  defaultStorageBackend,
			LocalDir: defaultStorageLocalDir,
			BaseURL:  defaultStorageBaseURL,
			S3: S3{
				Region: defaultS3Region,
			},
		},
		Ingest: Ingest{
			ServerURL:             defaultServerURL,
			FingerprintCeilingMiB: defaultFingerprintCeiling,
			DedupTimeoutSeconds:   defaultDedupTimeoutSeconds,
			ChunkSizeMiB:          defaultChunkSizeMiB,
			ChunkRetryLimit:       defaultChunkRetryLimit,
			LargeTransferSlots:    defaultLargeTransferSlots,
			MinFreeSpaceMiB:       defaultMinFreeSpaceMiB,
		},
		Compression: Compression{
			FFmpegBinary:     "ffmpeg",
			FFprobeBinary:    "ffprobe",
			TargetCeilingMiB: defaultTargetCeilingMiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
