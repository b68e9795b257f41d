// Package vehicle is the MCP tool server for vehicle driving-behavior data.
package vehicle

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/sdvagent/pkg/debug"
	"github.com/rhuss/sdvagent/pkg/toolserver"
)

// Server identity on the broker.
const (
	ServerName  = "sdv/devices/vehicle"
	Description = "An MCP server that contains tools to query vehicle driving behavior data."

	ToolQueryDrivingBehaviour = "query_vehicle_driving_behaviour_data"
)

// Event types recorded by the vehicle.
const (
	EventSuddenAcceleration = "sudden_acceleration"
	EventSuddenDeceleration = "sudden_deceleration"
	EventMaxSpeed           = "max_speed"
)

// ErrUnknownVehicle is returned for a vehicle without recorded data.
var ErrUnknownVehicle = errors.New("unknown vehicle")

var vehicleIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

//go:embed data
var embedded embed.FS

// Event is one recorded driving event.
type Event struct {
	Time string `json:"time"`
	Type string `json:"type"`

	// Location is "longitude,latitude".
	Location string `json:"location"`

	// Speed is set for max_speed events, e.g. "70km/h".
	Speed string `json:"speed,omitempty"`
}

// Behaviour is the driving-behavior record of a vehicle.
type Behaviour struct {
	Data []Event `json:"data"`
}

// Dataset reads vehicle_<id>.json files from an optional directory,
// falling back to the embedded sample data.
type Dataset struct {
	override fs.FS
	defaults fs.FS
}

// NewDataset returns a Dataset. An empty dir uses only the embedded data.
func NewDataset(dir string) *Dataset {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		panic(err)
	}
	d := &Dataset{defaults: sub}
	if dir != "" {
		d.override = os.DirFS(dir)
	}
	return d
}

// Lookup returns the driving behavior of a vehicle.
func (d *Dataset) Lookup(vehicleID string) (*Behaviour, error) {
	if !vehicleIDPattern.MatchString(vehicleID) {
		return nil, fmt.Errorf("invalid vehicle id %q", vehicleID)
	}
	name := "vehicle_" + vehicleID + ".json"

	data, err := d.read(name)
	if err != nil {
		return nil, err
	}
	var b Behaviour
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return &b, nil
}

func (d *Dataset) read(name string) ([]byte, error) {
	if d.override != nil {
		data, err := fs.ReadFile(d.override, name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
	}
	data, err := fs.ReadFile(d.defaults, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrUnknownVehicle
	}
	return data, err
}

// QueryInput is the argument of the driving-behavior tool.
type QueryInput struct {
	VehicleID string `json:"vehicle_id" jsonschema:"The unique identifier of the vehicle to query, e.g. 00001"`
}

const queryDescription = `Query the driving behavior data of a vehicle.

Returns JSON with a "data" list of events:
- time: when the event happened
- type: sudden_acceleration, sudden_deceleration or max_speed
- location: longitude and latitude of the event, comma separated
- speed: only for max_speed, the maximum speed in km/h`

// NewServer returns the MCP server with the vehicle tools.
func NewServer(ds *Dataset, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolQueryDrivingBehaviour,
		Description: queryDescription,
	}, func(_ context.Context, _ *mcp.CallToolRequest, in QueryInput) (*mcp.CallToolResult, struct{}, error) {
		b, err := ds.Lookup(in.VehicleID)
		if err != nil {
			if errors.Is(err, ErrUnknownVehicle) {
				err = fmt.Errorf("no driving data for vehicle %q", in.VehicleID)
			}
			return nil, struct{}{}, err
		}
		out, err := json.Marshal(b)
		if err != nil {
			return nil, struct{}{}, err
		}
		debug.Log("mcp", "driving data served", "vehicle_id", in.VehicleID, "events", len(b.Data))
		return toolserver.TextResult(string(out)), struct{}{}, nil
	})
	return srv
}
