// Command axis_logger copies axis status from axisd's websocket into
// InfluxDB, one point per axis per update.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	logger := golog.NewDevelopmentLogger("axis_logger")
	client := influxdb2.NewClient(getenv("INFLUX_SERVER", "http://localhost:9999"), os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	// Get non-blocking write client
	writeApi := client.WriteApi(getenv("INFLUX_ORG", "w1xm"), getenv("INFLUX_BUCKET", "axis.raw"))
	defer writeApi.Close()
	go func() {
		for err := range writeApi.Errors() {
			logger.Warnf("write error: %v", err)
		}
	}()
	url := getenv("AXISD_ADDRESS", "ws://localhost:8502/api/ws")
	for {
		if err := logData(url, writeApi); err != nil {
			logger.Warnf("%v", err)
		}
		time.Sleep(1 * time.Second)
	}
}

func flattenStatus(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flattenStatus(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flattenStatus(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	default:
		fields[prefix[1:]] = status
	}
}

type axisPoint struct {
	tags   map[string]string
	fields map[string]interface{}
}

// splitAxes turns one status message into a point per axis, tagged with
// the axis id.
func splitAxes(status map[string]interface{}) []axisPoint {
	axes, _ := status["axes"].([]interface{})
	var out []axisPoint
	for i, a := range axes {
		fields := make(map[string]interface{})
		flattenStatus(fields, a, "")
		delete(fields, "AxisID")
		out = append(out, axisPoint{
			tags:   map[string]string{"axis": strconv.Itoa(i)},
			fields: fields,
		})
	}
	return out
}

func logData(url string, writeApi api.WriteApi) error {
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	for {
		var status map[string]interface{}
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		now := time.Now()
		for _, p := range splitAxes(status) {
			// write asynchronously
			writeApi.WritePoint(influxdb2.NewPoint("axis.status", p.tags, p.fields, now))
		}
	}
}
