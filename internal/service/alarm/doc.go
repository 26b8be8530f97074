// Package alarm turns a qualifying button press into outbound deliveries.
//
// For every press-down the Pipeline makes sure tracking runs, sends the SMS
// notification and, once a position fix arrives, the SOS request to the
// tracking server. The branches are independent: a failure in one is logged
// and never stops the others.
package alarm
