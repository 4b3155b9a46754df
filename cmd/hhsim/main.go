package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ChristopherRabotin/gencomo"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// This code reads a scenario file, runs the simulation and exports the trajectory.

const defaultScenario = "~~unset~~"

var (
	scenario  string
	threshold float64
	verbose   bool
)

func init() {
	flag.StringVar(&scenario, "scenario", defaultScenario, "simulation scenario TOML file")
	flag.Float64Var(&threshold, "threshold", 0, "spike detection threshold (mV)")
	flag.BoolVar(&verbose, "verbose", false, "really verbose (esp. for configuration)")
}

func main() {
	flag.Parse()
	if scenario == defaultScenario {
		log.Fatal("no scenario provided")
	}
	sc, err := gencomo.LoadScenario(scenario)
	if err != nil {
		log.Fatalf("%s: %s", scenario, err)
	}
	sys, err := sc.System()
	if err != nil {
		log.Fatalf("%s: %s", scenario, err)
	}
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	if verbose {
		klog = level.NewFilter(klog, level.AllowDebug())
		log.Printf("[conf] %s", sc.GraphFile)
		for _, st := range sys.Stimuli() {
			log.Printf("[conf] %s", st)
		}
	} else {
		klog = level.NewFilter(klog, level.AllowInfo())
	}
	sys.SetLogger(klog)

	method, err := sc.Method()
	if err != nil {
		log.Fatal(err)
	}
	traj, err := sys.Run(sc.Start, sc.End, method)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(sys.Summary())
	fmt.Println(traj)
	for _, id := range sys.Graph().IDs() {
		stats, err := traj.Stats(id)
		if err != nil {
			log.Fatal(err)
		}
		spikes, _ := traj.SpikeTimes(id, threshold)
		fmt.Printf("%s: %s, %d spike(s)\n", id, stats, len(spikes))
	}
	if ids := sys.Graph().IDs(); len(ids) > 1 {
		if v, err := traj.ConductionVelocity(ids[0], ids[len(ids)-1], threshold); err == nil {
			fmt.Printf("conduction velocity %s -> %s: %.4f m/s\n", ids[0], ids[len(ids)-1], v)
		} else if verbose {
			log.Printf("[WARNING] %s", err)
		}
	}

	if !sc.Export.IsUseless() {
		path, err := sc.Export.Export(sc.OutputDir, traj)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("saved trajectory to %s", path)
	}
}
