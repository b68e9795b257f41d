// Package weather is the MCP tool server for historical weather data.
package weather

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/sdvagent/pkg/toolserver"
)

// Server identity and tool names.
const (
	ServerName  = "sdv/system_tools/weather"
	Description = "An MCP server that contains tools to query weather data."

	ToolProvinceID     = "query_by_province_id"
	ToolCityID         = "query_by_city_id"
	ToolHistoryWeather = "query_history_weather_by_city_id_and_date"
)

// ProvinceInput is the argument of query_by_province_id.
type ProvinceInput struct {
	Province string `json:"province" jsonschema:"The province name in Chinese, e.g. 安徽 or 北京"`
}

// CityInput is the argument of query_by_city_id.
type CityInput struct {
	ProvinceID string `json:"province_id" jsonschema:"The province id returned by query_by_province_id"`
	CityName   string `json:"city_name" jsonschema:"The city name in Chinese, e.g. 海淀 or 北京"`
}

// HistoryInput is the argument of query_history_weather_by_city_id_and_date.
type HistoryInput struct {
	CityID      string `json:"city_id" jsonschema:"The city id returned by query_by_city_id"`
	DateToQuery string `json:"date_to_query" jsonschema:"The date to query in the format YYYY-MM-DD"`
}

// NewServer returns the MCP server with the weather tools.
func NewServer(c *Client, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolProvinceID,
		Description: "Query the province id by province name. Returns the id as a string.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ProvinceInput) (*mcp.CallToolResult, struct{}, error) {
		id, err := c.ProvinceID(ctx, in.Province)
		if err != nil {
			return nil, struct{}{}, err
		}
		return toolserver.TextResult(id), struct{}{}, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolCityID,
		Description: "Query the city id by province id and city name. Returns the id as a string.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in CityInput) (*mcp.CallToolResult, struct{}, error) {
		id, err := c.CityID(ctx, in.ProvinceID, in.CityName)
		if err != nil {
			return nil, struct{}{}, err
		}
		return toolserver.TextResult(id), struct{}{}, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolHistoryWeather,
		Description: "Query the historical weather of a city on a date. Returns the weather information as JSON.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in HistoryInput) (*mcp.CallToolResult, struct{}, error) {
		data, err := c.HistoryWeather(ctx, in.CityID, in.DateToQuery)
		if err != nil {
			return nil, struct{}{}, err
		}
		return toolserver.TextResult(string(data)), struct{}{}, nil
	})

	return srv
}
