package main

import (
	"os"

	"github.com/gnssanalyze/rtk-advisor/internal/config"
)

// #region main
func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv))
}

// #endregion main

// #region usage
const usage = `usage: rnx2rtkp [option]... file file [...]

 -k file    input options from configuration file [off]
 -o file    set output file [stdout]
 -ts "ds ts" start day/time (ds=y/m/d ts=h:m:s) [obs start time]
 -te "de te" end day/time   (de=y/m/d te=h:m:s) [obs end time]
 -ti tint   time interval (sec) [all]
 -p mode    mode (0:single,1:dgps,2:kinematic,3:static,4:moving-base,
                  5:fixed,6:ppp-kinematic,7:ppp-static) [2]
 -m mask    elevation mask angle (deg) [15]
 -sys s[,s] nav system(s) (s=G:GPS,R:GLO,E:GAL,J:QZS,C:BDS,I:IRN) [G,R]
 -f freq    number of frequencies for relative mode (1:L1,2:L1+L2,3:L1+L2+L5) [2]
 -v thres   validation threshold for integer ambiguity (0.0:no AR) [3.0]
 -b         backward solutions [off]
 -c         forward/backward combined solutions [off]
 -i         instantaneous integer ambiguity resolution [off]
 -h         fix and hold for integer ambiguity resolution [off]
 -e         output x/y/z-ecef position [latitude/longitude/height]
 -a         output e/n/u-baseline [latitude/longitude/height]
 -n         output NMEA-0183 GGA sentence [off]
 -g         output latitude/longitude in the form of ddd mm ss.ss' [ddd.ddd]
 -t         output time in the form of yyyy/mm/dd hh:mm:ss.ss [sssss.ss]
 -u         output time in utc [gpst]
 -d col     number of decimals in time [3]
 -s sep     field separator [' ']
 -r "x y z" reference (base) receiver ecef pos (m) [average of single pos]
 -l "lat lon hgt" reference (base) receiver latitude/longitude/height (deg/m)
 -y level   output solution status (0:off,1:states,2:residuals) [0]
 -x level   debug trace level (0:off) [0]
 -audit     record every advisory decision in the catalog database [off]
 -metrics-addr addr  serve Prometheus metrics on addr [off]

environment: ` + config.EnvNLOS + ` ` + config.EnvVariance + ` ` + config.EnvVirtual + ` ` + config.EnvK + ` ` + config.EnvARMode + `
             ADVISOR_ENGINE ADVISOR_MODULE ADVISOR_PATHS ADVISOR_ADDR ADVISOR_DB ADVISOR_CALL_TIMEOUT
`

// #endregion usage
