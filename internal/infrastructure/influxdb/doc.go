// Package influxdb records property value telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. The mirror writes
// one point per numeric or boolean value change:
//
//	property_values,object_id=…,path=Channel.Gain,class=Daq value=2.5
//	property_updates,object_id=…                              changed=3i
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking and batched according to batch_size and
// flush_interval; batch errors are delivered through SetOnError.
package influxdb
