// Package mqtt publishes the assistant's activity to an MQTT broker so
// Home Assistant dashboards can show a live progress bubble while a
// chat request runs. Hearthside appears as a native HA device with
// availability tracking and an activity sensor.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect it publishes retained discovery config payloads plus a
// birth message ("online") to the availability topic. A will message
// ensures the availability topic transitions to "offline" on
// unexpected disconnects.
package mqtt
