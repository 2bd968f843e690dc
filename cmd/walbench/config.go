package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// loadConfigFile fills every flag not given on the command line from the
// config file at path. Keys use the flag names, e.g. value_size.
func loadConfigFile(fs *flag.FlagSet, path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	var setErr error
	fs.VisitAll(func(f *flag.Flag) {
		if setErr != nil || explicit[f.Name] || !v.IsSet(f.Name) {
			return
		}
		if err := f.Value.Set(v.GetString(f.Name)); err != nil {
			setErr = fmt.Errorf("config %s: key %s: %w", path, f.Name, err)
		}
	})
	if setErr != nil {
		return nil, setErr
	}
	return v, nil
}

// watchConfig applies report_interval edits to p while the benchmarks run.
// Other keys are read once at startup.
func watchConfig(v *viper.Viper, p *progress) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if !v.IsSet("report_interval") {
			return
		}
		d := v.GetDuration("report_interval")
		if d < 0 {
			fmt.Fprintf(os.Stderr, "walbench: ignoring negative report_interval %s from %s\n", d, e.Name)
			return
		}
		if d != p.reportInterval() {
			fmt.Printf("walbench: report_interval changed to %s\n", d)
			p.setInterval(d)
		}
	})
	v.WatchConfig()
}
