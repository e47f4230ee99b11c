package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cognitedata/hik-event-client/drivers/camera/hikevents"
	"github.com/cognitedata/hik-event-client/integrations/hik_motion"
	"github.com/cognitedata/hik-event-client/internal"
	"github.com/kardianos/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var Version string
var EncryptionKey = ""
var systemLog service.Logger
var fullConfigPath string

type Integration interface {
	Start() error
	Stop()
}

var integrReg map[string]Integration
var metricsServer *http.Server

type program struct{}

func (p *program) Start(s service.Service) error {
	// Start should not block. Do the actual work async.
	go p.run()
	return nil
}

func (p *program) run() {
	systemLog.Info("----Starting hik event client service-------")
	systemLog.Infof("Loading configuration from file %s", fullConfigPath)
	startEventClient(fullConfigPath)
}

func (p *program) Stop(s service.Service) error {
	// Stop should not block. Return with a few seconds.
	systemLog.Info("----Stopping hik event client service-------")
	stopEventClient()
	return nil
}

func configureService() service.Service {
	svcConfig := service.Config{Name: "hik-event-client", DisplayName: "Hikvision event client", Description: "Tracks motion status of Hikvision cameras"}
	var prg program

	appService, err := service.New(&prg, &svcConfig)
	if err != nil {
		log.Fatal(err)
	}
	systemLog, err = appService.Logger(nil)
	if err != nil {
		fmt.Printf("Error initializing system logger %s", err.Error())
	}
	return appService
}

func configureLogger(logPath, level string) {
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{
		DisableColors:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})
	if logPath != "" && logPath != "-" {
		logPath = filepath.Join(logPath, "hik-event-client.log")
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
		if err != nil {
			fmt.Printf("error opening file: %v", err)
			if systemLog != nil {
				systemLog.Error("Failed to create log , err :" + err.Error())
			}
			return
		}
		log.SetOutput(f)
	}
}

func startMetricsServer(address string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer = &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infof("Serving metrics on %s/metrics", address)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server failed. Err: ", err.Error())
		}
	}()
}

func startEventClient(mainConfigPath string) {
	config, err := internal.LoadStaticConfig(mainConfigPath)
	if err != nil {
		if systemLog != nil {
			systemLog.Error("Failed to load config file. Err:", err.Error())
		}
		log.Error("Failed to load config file. Err:", err.Error())
		return
	}

	logDir := internal.GetBinaryDir()
	if config.LogDir != "" {
		logDir = config.LogDir
	}
	configureLogger(logDir, config.LogLevel)

	log.Info("Starting hik event client service.")

	secretManager := internal.NewSecretManager(EncryptionKey)
	if EncryptionKey != "" {
		if err := secretManager.LoadEncryptedSecrets(config.Secrets); err != nil {
			log.Error("Failed to decrypt secrets. Err: ", err.Error())
		}
	} else {
		secretManager.LoadSecrets(config.Secrets)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := hikevents.NewMetrics(reg)
	if config.MetricsAddress != "" {
		startMetricsServer(config.MetricsAddress, reg)
	}

	integrReg = make(map[string]Integration)

	for _, integrName := range config.EnabledIntegrations {
		switch integrName {
		case hik_motion.IntegrationID:
			var intgrConfig hik_motion.IntegrationConfig
			if _, err := config.DecodeIntegrationConfig(integrName, &intgrConfig); err != nil {
				log.Errorf(" %s integration config is invalid . Error : %s", integrName, err.Error())
				continue
			}
			intgr := hik_motion.NewMotionIntegration(config.ExtractorID, metrics)
			intgr.SetConfig(intgrConfig)
			intgr.SetSecretManager(secretManager)
			if err := intgr.Start(); err != nil {
				log.Errorf(" %s integration can't be started . Error : %s", integrName, err.Error())
			} else {
				integrReg[integrName] = intgr
			}
		default:
			log.Warnf("Unknown integration %s , skipped", integrName)
		}
	}
}

func stopEventClient() {
	for _, intgr := range integrReg {
		intgr.Stop()
	}
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Shutdown(ctx)
	}
}

func generateConfig() internal.StaticConfig {
	var config internal.StaticConfig
	config.ExtractorID = "hik-event-client"
	config.EnabledIntegrations = []string{hik_motion.IntegrationID}
	config.LogLevel = "info"
	config.MetricsAddress = ":9100"
	config.LocalIntegrationConfig = map[string]interface{}{
		hik_motion.IntegrationID: hik_motion.IntegrationConfig{
			Cameras: []hik_motion.CameraConfig{{
				ID:       1,
				Name:     "camera1",
				Model:    "hikvision",
				Address:  "192.168.1.64",
				Port:     80,
				Username: "admin",
				Password: "camera1_password",
				State:    hik_motion.CameraStateEnabled,
			}},
		},
	}
	return config
}

func main() {
	log.Infof("----- Starting hik-event-client - version = %s ----------", Version)

	mainConfigPath := flag.String("config", "config.json", "Full path to main configuration file")
	base64encodedConfig := flag.String("bconfig", "", "Base64 encoded config")
	op := flag.String("op", "", "Supported operations : 'gen_config,version,encrypt_secret,install,uninstall,run' ")
	textToEncrypt := flag.String("secret", "", "Secret to encrypt")

	flag.Parse()

	if *mainConfigPath == "config.json" {
		*mainConfigPath = filepath.Join(internal.GetBinaryDir(), *mainConfigPath)
	}
	fullConfigPath = *mainConfigPath

	// User can configure app by passing configurations as one base64 encoded string
	if *base64encodedConfig != "" {
		log.Info("Loading configuration from cmd line parameter")
		body, err := base64.StdEncoding.DecodeString(*base64encodedConfig)
		if err != nil {
			log.Errorf("Error decoding base64 encoded config: %s ", err.Error())
			return
		}
		if err := os.WriteFile(fullConfigPath, body, 0644); err != nil {
			log.Errorf("Error writing config file: %s ", err.Error())
			return
		}
	}

	if EncryptionKey != "" {
		log.Info("Encryption key is set . Secrets will be decrypted")
	} else {
		log.Info("Encryption key is not set .")
	}

	switch *op {
	case "gen_config":
		log.Info("Generating config file")
		config := generateConfig()
		body, _ := json.MarshalIndent(&config, " ", "  ")
		if err := os.WriteFile("config.json", body, 0644); err != nil {
			log.Error("Failed to write config file. Err: ", err.Error())
		}
	case "version":
		fmt.Println(Version)
	case "encrypt_secret":
		if EncryptionKey == "" {
			fmt.Println("Please provide encryption key")
			return
		}
		if *textToEncrypt == "" {
			fmt.Println("Please provide text to encrypt")
			return
		}
		encrypted, err := internal.EncryptString(EncryptionKey, *textToEncrypt)
		if err != nil {
			fmt.Println("Failed to encrypt string. Err:", err.Error())
			return
		}
		fmt.Println("Encrypted string : ", encrypted)
	case "install":
		log.Info("Installing hik-event-client service")
		appService := configureService()
		err := appService.Install()
		if err != nil {
			log.Error("Failed to install service.Make sure you run installation as system administrator Err: ", err.Error())
		} else {
			err = appService.Start()
			if err != nil {
				log.Error("Failed to run service. Err: ", err.Error())
			}
		}
	case "uninstall":
		log.Info("Uninstalling hik-event-client service")
		appService := configureService()
		if err := appService.Uninstall(); err != nil {
			log.Error("Failed to uninstall service", err.Error())
		}
	case "run":
		// Should be used to start service from CLI
		startEventClient(*mainConfigPath)
		select {}
	default:
		// Used by OS service supervisor
		appService := configureService()
		if err := appService.Run(); err != nil {
			log.Error(err)
		}
	}
}
