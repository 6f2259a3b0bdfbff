// Package simulation drives a class of synthetic students through the
// attendance backend: derive identity, sign the device id, check in, and on
// acceptance stream a burst of RSSI samples.
//
// The driver is strictly sequential. Each student's requests complete before
// the next student starts, and a fixed pause separates students so that the
// local machine does not run out of ephemeral ports.
//
// Usage:
//
//	d, err := simulation.NewDriver(simulation.DriverConfig{
//	    Backend:  client,
//	    Sampler:  rssi.NewSampler(rssi.SamplerConfig{}),
//	    Pacer:    pacing.NewPacer(pacing.DefaultDelay, 0),
//	    Session:  simulation.Session{ID: sessionID, ClassID: "CS101", Minor: 101},
//	    Secret:   secret,
//	    Students: 50,
//	    Out:      os.Stdout,
//	})
//	report, err := d.Run(ctx)
package simulation
