// Package gencomo simulates signal propagation in neurons segmented into compartments.
//
// A SegmentGraph, built programmatically or read from a DOT file, is validated into a
// CompartmentGraph. An ODESystem couples it with Hodgkin-Huxley parameters and stimuli,
// assembles the Equations and integrates them into a Trajectory.
//
// Units: ms, mV, µm, µm², µm³; densities in mS/cm² and µF/cm²; junction conductances in S;
// injected currents in pA.
package gencomo
