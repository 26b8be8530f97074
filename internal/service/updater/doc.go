// Package updater applies staged dispatcher binaries and inspects running processes.
//
// A staged update is a replacement binary dropped next to a base64 SHA-512
// checksum file. The watchdog applies it right before launching the
// dispatcher, so a new version takes effect on the next relaunch.
package updater
