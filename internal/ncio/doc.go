// Package ncio reads and writes datasets as netCDF files.
//
// Two on-disk formats are supported:
//   - classic: CDF-1, CDF-2 and CDF-5 are read and CDF-2 is written by the
//     codec in this package. No compression.
//   - netcdf4: the HDF5-based format, handled through the netCDF-C
//     utilities (nccopy, ncdump) on PATH. It is the only format with
//     per-variable zlib compression, and the one model outputs are written
//     in. Writing goes through a classic file that nccopy converts with
//     deflate and shuffle; reading converts to CDF-5, and variable-length
//     string variables are read from ncdump text.
//
// Read detects the format from the file signature. String coordinates are
// written as fixed-width character arrays with an extra "<dim>_strlen"
// dimension; on read, both character arrays and netCDF-4 string variables
// become string coordinates.
//
// On read, CF packing attributes are applied like xarray does:
// _FillValue/missing_value become NaN and scale_factor/add_offset are
// applied. All attributes are carried as text.
package ncio
