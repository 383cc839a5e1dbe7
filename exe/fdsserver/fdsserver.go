package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjulian79/libfds/common"
	"github.com/fjulian79/libfds/config"
	"github.com/fjulian79/libfds/flash"
	"github.com/fjulian79/libfds/storage"
	"github.com/fjulian79/libfds/web"
)

const (
	defaultConfigFilename = "/etc/fdsserver.cfg"
)

func main() {
	var configFilename string
	flag.StringVar(&configFilename, "c", "", "configuration filename")
	flag.Parse()

	if configFilename == "" {
		configFilename = defaultConfigFilename
	}

	f, err := os.Open(configFilename)
	if err != nil {
		log.Fatalf("can not open config file %s: %s", configFilename, err)
	}
	defer f.Close()

	cfg, err := config.ReadServerConfig(f)
	if err != nil {
		log.Fatalf("error reading config: %s", err)
	}

	lf, err := common.ConfigureLogging(cfg.LogFileName, cfg.Debug)
	if err != nil {
		log.Fatalf("error opening logfile: %s", err)
	}
	defer lf.Close()

	dev, err := flash.OpenFile(cfg.ImageFileName, cfg.Store.PageSize)
	if err != nil {
		log.Fatalf("error opening flash image: %s", err)
	}
	defer dev.Close()

	store, err := storage.New(dev, cfg.Store)
	if err != nil {
		log.Fatalf("error creating store: %s", err)
	}

	if err = store.Init(false); err != nil {
		log.Fatalf("error initializing store: %s", err)
	}

	srv, err := web.NewServer(store, cfg).Start()
	if err != nil {
		log.Fatalf("error starting server: %s", err)
	}

	sigs := make(chan os.Signal)
	signal.Notify(sigs, syscall.SIGINT)
	defer signal.Reset()

	_ = <-sigs
	srv.Shutdown(nil)

}
