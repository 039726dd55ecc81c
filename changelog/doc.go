// Package changelog records row-level changes of point tables in a
// sequence-numbered log (kd_point_log) so downstream replicas can pull and
// replay them per dataset. Each dataset carries its own change number (SCN)
// advanced by triggers on the point table.
package changelog
