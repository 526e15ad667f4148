// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"autoflow/internal/config"
	"autoflow/internal/connector"
	"autoflow/internal/controller"
	"autoflow/internal/controller/optimizer"
	"autoflow/internal/maintenance"
	"autoflow/internal/recorder"
	"autoflow/internal/station"
	"autoflow/pkg/appctx"
	"autoflow/pkg/eventbus"
	"autoflow/pkg/logger"
	"autoflow/pkg/modbus"
	"autoflow/pkg/rootserv"
	"autoflow/pkg/service"
	"autoflow/pkg/sysmon"
)

func main() {

	rootdir := os.Getenv("PROJECT_ROOT")
	if rootdir == "" {
		rootdir = "."
	}

	logger.Init(filepath.Join(rootdir, "var/logs/autoflow.log"))
	log := logger.New("Main")

	appConf := config.LoadFile(filepath.Join(rootdir, "var/config/autoflow.json"))

	fmt.Println(filepath.Join(rootdir, "var/logs/autoflow.log"))
	fmt.Println(filepath.Join(rootdir, "var/config/autoflow.json"))

	// use conf to pass eventbus to whoever needs it
	appConf.EventBus = eventbus.New()
	appConf.DataDir = filepath.Join(rootdir, "var/cache")
	appConf.RootDir = rootdir

	loc, err := appConf.Location()
	if err != nil {
		log.Fatal("%v", err)
	}

	ctx, ctxCancel := appctx.New()

	// init services
	server := rootserv.New(appConf.HTTP.Addr)
	sysMonitorService := sysmon.New(appConf.DataDir, appConf.EventBus)

	conn, connWeb := newConnector(ctx, appConf, loc)
	controllerService := controller.New(conn, newLaw(appConf, loc), appConf.EventBus)

	maintenanceService := maintenance.New(appConf.EventBus, maintenance.Options{
		ReportAt:     appConf.Maintenance.ReportAt,
		ServiceHours: appConf.Maintenance.ServiceHours,
		StateFile:    filepath.Join(appConf.DataDir, appConf.Maintenance.StateFile),
		Location:     loc,
	})

	services := []service.Runnable{
		controllerService,
		maintenanceService,
		server,
	}
	if rec := newRecorder(appConf); rec != nil {
		services = append(services, rec)
	}

	// attach web handler enabled services
	server.Attach("/logger", "Logger", logger.WebService())
	server.Attach("/monitor", "System Monitor", sysMonitorService)
	server.Attach("/controller", "Control Loop State", controllerService)
	server.Attach("/maintenance", "Pump Run Hours", maintenanceService)
	if connWeb != nil {
		server.Attach("/modbus", "Modbus Registers", connWeb)
	}

	// start runnable services
	exitCh := service.Start(ctx, ctxCancel, services)

	// waits for all services to stop
	code := <-exitCh
	appConf.EventBus.Close()
	os.Exit(code)
}

func resolve(conf *config.Config, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(conf.RootDir, path)
}

// newConnector builds the connector for conf.Mode. The second result is the
// connector's status page, if it has one.
func newConnector(ctx context.Context, conf *config.Config, loc *time.Location) (connector.Connector, http.Handler) {
	log := logger.New("Main")
	st := conf.Station

	switch conf.Mode {
	case config.ModeVirtual:
		models, err := station.LoadModels(resolve(conf, st.ModelsFile), st.Pumps, st.VariableSpeed)
		if err != nil {
			log.Fatal("%v", err)
		}
		inflow, err := connector.LoadProfile(resolve(conf, conf.Virtual.InflowFile))
		if err != nil {
			log.Fatal("inflow profile: %v", err)
		}
		var wetBulb []float64
		if conf.Virtual.WetBulbFile != "" {
			if wetBulb, err = connector.LoadProfile(resolve(conf, conf.Virtual.WetBulbFile)); err != nil {
				log.Fatal("wet bulb profile: %v", err)
			}
		}
		v, err := connector.NewVirtual(connector.VirtualOptions{
			Models:        models,
			VariableSpeed: st.VariableSpeed,
			TankArea:      st.TankArea,
			Bounds:        st.Bounds,
			InitialLevel:  conf.Virtual.InitialLevel,
			InitialSwitch: conf.Virtual.InitialSwitch,
			InitialSpeed:  conf.Virtual.InitialSpeed,
			Inflow:        inflow,
			WetBulb:       wetBulb,
			Setting:       conf.Virtual.Setting,
			Period:        conf.SamplePeriod(),
			RealTime:      conf.RealTime,
		})
		if err != nil {
			log.Fatal("virtual station: %v", err)
		}
		return v, nil

	case config.ModeModbus:
		path := resolve(conf, conf.Modbus.RegistersFile)
		modbusConf := modbus.LoadConfig(path)
		tags, err := connector.LoadTagMap(path)
		if err != nil {
			log.Fatal("%v", err)
		}
		client, err := modbus.NewClient(ctx, modbusConf)
		if err != nil {
			log.Fatal("modbus: %v", err)
		}
		go func() {
			<-ctx.Done()
			client.Close()
		}()
		m, err := connector.NewModbus(client, connector.ModbusOptions{
			Tags:     tags,
			Pumps:    st.Pumps,
			Fallback: conf.Modbus.Setting,
			Period:   conf.SamplePeriod(),
			RealTime: conf.RealTime,
		})
		if err != nil {
			log.Fatal("%s: %v", path, err)
		}
		return m, m

	case config.ModeAPI:
		a, err := connector.NewAPI(connector.APIOptions{
			URL:      conf.API.URL,
			Timeout:  time.Duration(conf.API.TimeoutSeconds) * time.Second,
			Retry:    connector.NewRetry(conf.API.Retries, time.Duration(conf.API.BackoffMillis)*time.Millisecond, "APIRetry"),
			Fallback: conf.API.Setting,
			Location: loc,
			Period:   conf.SamplePeriod(),
			RealTime: conf.RealTime,
		})
		if err != nil {
			log.Fatal("%v", err)
		}
		return a, nil
	}
	log.Fatal("unknown mode %q", conf.Mode)
	return nil, nil
}

func newLaw(conf *config.Config, loc *time.Location) controller.Law {
	if conf.Controller.Law == config.LawCooling {
		return controller.NewCoolingLaw(optimizer.New())
	}

	setting := conf.Virtual.Setting
	switch conf.Mode {
	case config.ModeModbus:
		setting = conf.Modbus.Setting
	case config.ModeAPI:
		setting = conf.API.Setting
	}
	law, err := controller.NewLevelLaw(controller.LevelConfig{
		Bounds:   conf.Station.Bounds,
		TankArea: conf.Station.TankArea,
		Dispatch: conf.Station.Dispatch,
		Location: loc,
		Setting:  setting,
	})
	if err != nil {
		logger.New("Main").Fatal("level law: %v", err)
	}
	return law
}

func newRecorder(conf *config.Config) *recorder.Recorder {
	rc := conf.Recorder
	var sinks []recorder.Sink
	if rc.EmonCMSAddr != "" {
		sinks = append(sinks, recorder.NewEmonCMS(rc.EmonCMSAddr, rc.EmonCMSApiKey, rc.EmonCMSNode))
	}
	if rc.MQTTBroker != "" {
		m, err := recorder.DialMQTT(rc.MQTTBroker, rc.MQTTClientID, rc.MQTTTopic)
		if err != nil {
			logger.New("Main").Error("recorder: %v", err)
		} else {
			sinks = append(sinks, m)
		}
	}
	if len(sinks) == 0 {
		return nil
	}
	return recorder.New(conf.EventBus, time.Duration(rc.IntervalSeconds)*time.Second, sinks...)
}
