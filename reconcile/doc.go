/*
Package reconcile splits the singleton byproducts of host-read filtering back
into oriented mate-1/mate-2 pseudo-pair files.

Host filtering leaves two unpaired streams per sample:

  - true singletons: reads whose mate was removed as host, and
  - asymmetric singletons: reads that survived only one of the filtering
    paths (e.g. the paired alignment pass but not the unpaired one).

Each stream mixes first and second mates. Reconcile routes every record to
the R1 or R2 file of its origin class using the mate-orientation marker in
the read ID (FASTQ) or the READ1/READ2 flags (BAM). A record with no
determinable orientation aborts the sample: dropping it silently would break
read-count conservation, so it is reported as an Invalid error. Records are
never duplicated or dropped; Counts reports the per-file totals and
Reconcile verifies that the totals in and out agree.
*/
package reconcile
