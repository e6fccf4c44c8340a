/*
Package measurement runs speed measurements end to end. It resolves the server
directory, picks the servers with the lowest latency and measures download and
upload throughput against them.

Key Components:

  - MeasurementService: Core service that drives one measurement run
  - Selection: The servers considered for a run and how they ranked
  - Result: Everything a run measured, tagged with its run id
  - Cache: Storage for the last known server list, see package database

MeasurementService Methods:

	Servers: Resolves the directory and ranks the nearest servers by latency
	Download: Measures download throughput against the best servers
	Upload: Measures upload throughput against the best servers
	Run: Server selection, download and upload in one run
	SyncCache: Stores the current directory in the cache
	CachedServers: Lists the cached servers

Usage Example:

	settings, err := config.Load(viper.GetViper())
	if err != nil {
		log.Fatal(err)
	}

	client, err := fetch.NewClient(fetch.Options{Transport: settings.Speedtest.Transport})
	if err != nil {
		log.Fatal(err)
	}

	svc := measurement.NewMeasurementService(settings, client, nil, rand.New(rand.NewPCG(seed1, seed2)), logger)
	result, err := svc.Run(context.Background(), measurement.RunOptions{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(result.Download.Throughput, result.Upload.Throughput)

Measurement Process:

1. Server Selection:
  - Fetches the primary configuration document and, when it lists no servers, the mirrors
  - Falls back to the cached server list when every network source is empty
  - Probes the speedtest.probe_count nearest servers and keeps the speedtest.best_count fastest

2. Download:
  - Fetches generated images of every configured size from the best server
  - Moves on to the next server when a transfer fails

3. Upload:
  - Posts generated payloads to the best server's upload URL
  - Moves on to the next server when a transfer fails

Error Handling:

Only a missing primary configuration document and cancellation surface as errors.
Unreachable servers are skipped, and a run where no server completes reports zero
throughput.

Logging:

Every run gets a UUID run id that is attached to all of its log lines as run_id.
*/
package measurement
